package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"SQLPumpClickHouse/internal/batch"
	"SQLPumpClickHouse/internal/clickhouseclient"
	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/logger"
	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/repl"
	"SQLPumpClickHouse/internal/storage"
	"SQLPumpClickHouse/internal/watcher"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "путь к config.yaml")
	script := flag.String("f", "", "выполнить команды из файла и выйти")
	command := flag.String("c", "", "выполнить одну команду и выйти")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: sqlpump [-config path] [-f file.sql] [-c sql] [follow]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := resolveConfigPath(*configPath)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфига %s: %v\n", path, err)
		os.Exit(1)
	}

	// Логи — в stderr, stdout остаётся для результатов запросов
	rootLogger, err := logger.InitZap(&cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	lg := rootLogger.Named("main")
	defer lg.Sync()
	lg.Debug("Конфиг загружен", zap.String("path", path))

	chClient, err := clickhouseclient.New(cfg.ClickHouse, rootLogger.Named("clickhouse"))
	if err != nil {
		lg.Fatal("Ошибка подключения к ClickHouse", zap.Error(err))
	}
	defer chClient.Close()

	switch flag.Arg(0) {
	case "follow":
		if err := runFollow(ctx, cfg, path, rootLogger, chClient); err != nil {
			lg.Fatal("Режим follow завершился с ошибкой", zap.Error(err))
		}
		return
	case "":
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err := chClient.Ping(ctx); err != nil {
		lg.Warn("ClickHouse недоступен, запросы будут завершаться ошибкой", zap.Error(err))
	}
	if err := runRepl(ctx, cfg, rootLogger, chClient, *script, *command); err != nil {
		if errors.Is(err, repl.ErrIncompleteInput) {
			lg.Fatal("Ввод закончился внутри оператора", zap.Error(err))
		}
		lg.Fatal("Ошибка выполнения", zap.Error(err))
	}
}

// resolveConfigPath: отсутствующий config.yaml по умолчанию не ошибка, берутся значения по умолчанию
func resolveConfigPath(path string) string {
	if path != defaultConfigPath {
		return path
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func runRepl(ctx context.Context, cfg *config.Config, rootLogger *zap.Logger, chClient *clickhouseclient.Client, script, command string) error {
	r := repl.New(repl.OptionsFromConfig(cfg), chClient, os.Stdout, rootLogger.Named("repl"))

	switch {
	case command != "":
		return r.RunCommand(ctx, command)
	case script != "":
		in, err := repl.OpenScriptReader(script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer in.Close()
		return r.Run(ctx, in)
	case term.IsTerminal(int(os.Stdin.Fd())):
		in := repl.NewTerminalReader(cfg.Repl.HistoryFile, rootLogger.Named("history"))
		defer in.Close()
		return r.Run(ctx, in)
	default:
		return r.Run(ctx, repl.NewScannerReader(os.Stdin))
	}
}

func openStore(cfg *config.Config) (storage.ProcessedStore, func(), error) {
	if cfg.ProcessedStorage == "redis" {
		rs, err := storage.NewRedisStore(&cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	}
	return storage.NewFileStore(cfg.ProcessedFile), func() {}, nil
}

func runFollow(ctx context.Context, cfg *config.Config, path string, rootLogger *zap.Logger, chClient *clickhouseclient.Client) error {
	lg := rootLogger.Named("main")
	if err := cfg.ValidateFollow(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := chClient.Ping(ctx); err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open processed store: %w", err)
	}
	defer closeStore()
	lg.Info("Режим follow стартует", zap.Strings("dirs", cfg.Follow.Directories), zap.String("storage", cfg.ProcessedStorage))

	jobs := make(chan models.StatementJob, cfg.Follow.BatchSize*2)

	var batcher *batch.Batcher
	w := watcher.New(watcher.Config{
		Config:     cfg,
		ConfigPath: path,
		Logger:     rootLogger.Named("watcher"),
		Store:      store,
		OnReload:   func(c *config.Config) { batcher.Reconfigure(c.Follow) },
	}, jobs)
	batcher = batch.NewBatcher(cfg.Follow, rootLogger.Named("batcher"), chClient, chClient, w)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Start(gctx) })
	g.Go(func() error { return batcher.Run(gctx, jobs) })
	err = g.Wait()

	// batcher мог сдвинуть смещения уже после того, как watcher их сохранил
	w.Save()
	lg.Info("Режим follow завершил работу")
	return err
}
