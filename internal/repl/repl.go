// repl (read eval print loop) связывает разбор операторов с выполнением в ClickHouse.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/sqlparse"
	"SQLPumpClickHouse/internal/transform"
)

var (
	// ErrIncompleteInput — неинтерактивный ввод закончился внутри оператора
	ErrIncompleteInput = errors.New("incomplete input")
	// ErrQuit возвращают метакоманды, завершающие цикл
	ErrQuit = errors.New("quit")
	// ErrAborted возвращает LineReader, когда пользователь нажал Ctrl-C
	ErrAborted = errors.New("input aborted")
)

const maxIncludeDepth = 16

// Executor выполняет закрытый SQL-оператор
type Executor interface {
	Execute(ctx context.Context, stmt *sqlparse.Statement) (*models.Result, error)
}

type Options struct {
	Database           string
	Prompt             string
	ContinuationPrompt string
	StopOnError        bool
	Timing             bool
	Config             *config.Config
}

// OptionsFromConfig берёт настройки приглашения и поведения из конфига
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Database:           cfg.ClickHouse.Database,
		Prompt:             cfg.Repl.Prompt,
		ContinuationPrompt: cfg.Repl.ContinuationPrompt,
		StopOnError:        cfg.Repl.StopOnError,
		Timing:             cfg.Repl.Timing,
		Config:             cfg,
	}
}

type Repl struct {
	opts     Options
	exec     Executor
	out      io.Writer
	logger   *zap.Logger
	registry *Registry
	session  *Session
	// held — незавершённый запрос, за которым в том же вводе шла метакоманда
	held   string
	timing bool
	depth  int
}

func New(opts Options, exec Executor, out io.Writer, logger *zap.Logger) *Repl {
	return &Repl{
		opts:     opts,
		exec:     exec,
		out:      out,
		logger:   logger,
		registry: DefaultRegistry(),
		session:  NewSession(),
		timing:   opts.Timing,
	}
}

// Registry даёт доступ к метакомандам, например чтобы добавить свои
func (r *Repl) Registry() *Registry {
	return r.registry
}

func (r *Repl) prompt() string {
	if !r.session.Pending() {
		return r.opts.Database + r.opts.Prompt
	}
	if d := r.session.OpenDelimiter(); d != "" {
		return r.opts.Database + d + "> "
	}
	return r.opts.Database + r.opts.ContinuationPrompt
}

// Run читает строки, пока ввод не кончится или не придёт \q.
// Для неинтерактивного ввода незакрытый оператор в конце — ошибка ErrIncompleteInput.
func (r *Repl) Run(ctx context.Context, in LineReader) error {
	err := r.loop(ctx, in)
	if errors.Is(err, ErrQuit) {
		return nil
	}
	return err
}

func (r *Repl) loop(ctx context.Context, in LineReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := in.ReadLine(r.prompt())
		if errors.Is(err, ErrAborted) {
			r.session.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			return r.finish(in)
		}
		if err != nil {
			return fmt.Errorf("read line: %w", err)
		}

		buffered := r.session.Buffer() + line + "\n"
		stmts, pending := r.session.FeedReady(line)
		if len(stmts) == 0 {
			continue
		}
		if pending {
			// открытый хвост попадёт в историю вместе со своим продолжением
			buffered = strings.TrimSuffix(buffered, r.session.Buffer())
		}
		in.AddHistory(strings.TrimSpace(buffered))
		if err := r.dispatch(ctx, stmts); err != nil {
			return err
		}
	}
}

func (r *Repl) finish(in LineReader) error {
	if !r.session.Pending() {
		return nil
	}
	delim := r.session.OpenDelimiter()
	if in.Interactive() {
		r.logger.Debug("Незавершённый оператор отброшен", zap.String("delimiter", delim))
		r.session.Reset()
		return nil
	}
	if delim == "" {
		delim = ";"
	}
	return fmt.Errorf("%w: expected %s", ErrIncompleteInput, delim)
}

// dispatch выполняет закрытые операторы по порядку: метакоманды — через реестр, SQL — через Executor
func (r *Repl) dispatch(ctx context.Context, stmts []*sqlparse.Statement) error {
	defer func() {
		if r.held != "" {
			// открытый хвост строки дописывается к удержанному запросу
			r.session.Seed(r.held + r.session.Buffer())
			r.held = ""
		}
	}()
	for _, stmt := range stmts {
		if stmt.Keyword == sqlparse.KeywordMetaCommand {
			if err := r.registry.Dispatch(ctx, r, stmt); err != nil {
				return err
			}
			continue
		}
		if stmt.Open() {
			// без ';' перед метакомандой: это буфер запроса для \p, \r, \g
			r.held += stmt.Raw
			continue
		}
		if err := r.execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repl) execute(ctx context.Context, stmt *sqlparse.Statement) error {
	if r.exec == nil {
		fmt.Fprintln(r.out, "ERROR: not connected")
		return nil
	}
	res, err := r.exec.Execute(ctx, stmt)
	if err != nil {
		fmt.Fprintf(r.out, "ERROR: %v\n", err)
		r.logger.Debug("Ошибка выполнения", zap.String("keyword", string(stmt.Keyword)), zap.Error(err))
		if r.opts.StopOnError {
			return fmt.Errorf("execute %s: %w", transform.CommandTag(stmt), err)
		}
		return nil
	}
	if res.HasRows && len(res.Columns) > 0 {
		fmt.Fprint(r.out, printRows(res.Columns, res.Rows))
	} else {
		fmt.Fprintln(r.out, transform.CommandTag(stmt))
	}
	if r.timing {
		fmt.Fprintf(r.out, "Time: %s\n", res.Duration)
	}
	return nil
}

// RunCommand выполняет строку целиком, как -c: завершающую ';' можно не ставить
func (r *Repl) RunCommand(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	stmts := sqlparse.Parse(text)
	if sqlparse.Pending(stmts) && stmts[len(stmts)-1].OpenDelimiter() == "" {
		text += ";"
	}
	return r.Run(ctx, NewScannerReader(strings.NewReader(text)))
}

// include выполняет файл через тот же разбор со своим буфером (\i)
func (r *Repl) include(ctx context.Context, in LineReader) error {
	if r.depth >= maxIncludeDepth {
		return fmt.Errorf("include nesting deeper than %d", maxIncludeDepth)
	}
	saved, savedHeld := r.session, r.held
	r.session, r.held = NewSession(), ""
	r.depth++
	defer func() {
		r.session, r.held = saved, savedHeld
		r.depth--
	}()
	return r.loop(ctx, in)
}
