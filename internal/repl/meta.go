package repl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/sqlparse"
)

// MetaFunc выполняет метакоманду; args — слова после имени команды
type MetaFunc func(ctx context.Context, r *Repl, args []string) error

type metaCommand struct {
	name  string
	usage string
	help  string
	run   MetaFunc
}

// Registry сопоставляет имя метакоманды (\q, \i, ...) с обработчиком
type Registry struct {
	commands map[string]*metaCommand
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*metaCommand)}
}

// Register добавляет команду; повторная регистрация заменяет обработчик
func (g *Registry) Register(name, usage, help string, run MetaFunc) {
	g.commands[name] = &metaCommand{name: name, usage: usage, help: help, run: run}
}

// Dispatch разбирает текст метакоманды и вызывает обработчик.
// Ошибки обработчика печатаются; наружу уходят только ErrQuit и ошибки при StopOnError.
func (g *Registry) Dispatch(ctx context.Context, r *Repl, stmt *sqlparse.Statement) error {
	fields := strings.Fields(stmt.MetaCommand())
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := g.commands[fields[0]]
	if !ok {
		fmt.Fprintf(r.out, "invalid command %s\nTry \\? for help.\n", fields[0])
		return nil
	}
	err := cmd.run(ctx, r, fields[1:])
	if err == nil || errors.Is(err, ErrQuit) {
		return err
	}
	fmt.Fprintf(r.out, "ERROR: %s: %v\n", cmd.name, err)
	if r.opts.StopOnError {
		return fmt.Errorf("%s: %w", cmd.name, err)
	}
	return nil
}

func (g *Registry) help() string {
	names := make([]string, 0, len(g.commands))
	width := 0
	for name, cmd := range g.commands {
		names = append(names, name)
		if l := len(cmd.name) + len(cmd.usage) + 1; l > width {
			width = l
		}
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("General\n")
	for _, name := range names {
		cmd := g.commands[name]
		fmt.Fprintf(&b, "  %-*s  %s\n", width, strings.TrimSpace(cmd.name+" "+cmd.usage), cmd.help)
	}
	return b.String()
}

// DefaultRegistry — встроенные метакоманды клиента
func DefaultRegistry() *Registry {
	g := NewRegistry()
	quit := func(context.Context, *Repl, []string) error { return ErrQuit }
	g.Register(`\q`, "", "quit", quit)
	g.Register(`\quit`, "", "quit", quit)
	g.Register(`\?`, "", "show this help", func(_ context.Context, r *Repl, _ []string) error {
		fmt.Fprint(r.out, g.help())
		return nil
	})
	g.Register(`\echo`, "[TEXT]", "write text to output", func(_ context.Context, r *Repl, args []string) error {
		fmt.Fprintln(r.out, strings.Join(args, " "))
		return nil
	})
	g.Register(`\p`, "", "show the query buffer", func(_ context.Context, r *Repl, _ []string) error {
		if strings.TrimSpace(r.held) == "" {
			fmt.Fprintln(r.out, "Query buffer is empty.")
			return nil
		}
		fmt.Fprintln(r.out, strings.TrimSpace(r.held))
		return nil
	})
	g.Register(`\r`, "", "reset (clear) the query buffer", func(_ context.Context, r *Repl, _ []string) error {
		r.held = ""
		fmt.Fprintln(r.out, "Query buffer reset (cleared).")
		return nil
	})
	g.Register(`\g`, "", "execute the query buffer", runHeld)
	g.Register(`\timing`, "[on|off]", "toggle timing of commands", func(_ context.Context, r *Repl, args []string) error {
		switch {
		case len(args) == 0:
			r.timing = !r.timing
		case args[0] == "on":
			r.timing = true
		case args[0] == "off":
			r.timing = false
		default:
			return fmt.Errorf("unrecognized value %q: on or off expected", args[0])
		}
		state := "off"
		if r.timing {
			state = "on"
		}
		fmt.Fprintf(r.out, "Timing is %s.\n", state)
		return nil
	})
	g.Register(`\i`, "FILE", "execute commands from file", func(ctx context.Context, r *Repl, args []string) error {
		if len(args) != 1 {
			return errors.New("missing required argument")
		}
		in, err := OpenScriptReader(args[0])
		if err != nil {
			return err
		}
		defer in.Close()
		return r.include(ctx, in)
	})
	g.Register(`\config`, "", "show effective configuration", func(_ context.Context, r *Repl, _ []string) error {
		if r.opts.Config == nil {
			fmt.Fprintln(r.out, "No configuration loaded.")
			return nil
		}
		out, err := config.Dump(r.opts.Config)
		if err != nil {
			return err
		}
		fmt.Fprint(r.out, out)
		return nil
	})
	g.Register(`\conninfo`, "", "display information about current connection", func(_ context.Context, r *Repl, _ []string) error {
		if info, ok := r.exec.(interface{ ConnInfo() string }); ok {
			fmt.Fprintln(r.out, info.ConnInfo())
			return nil
		}
		fmt.Fprintln(r.out, "You are currently not connected to a database.")
		return nil
	})
	return g
}

// runHeld выполняет незавершённый запрос так, будто он закончился ';'
func runHeld(ctx context.Context, r *Repl, _ []string) error {
	text := r.held
	r.held = ""
	if strings.TrimSpace(text) == "" {
		return nil
	}
	stmts := sqlparse.Parse(text + ";")
	for _, stmt := range stmts {
		if err := r.execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
