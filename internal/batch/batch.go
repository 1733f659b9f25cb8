package batch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/sqlparse"
	"SQLPumpClickHouse/internal/transform"
)

// Executor выполняет закрытый оператор (clickhouseclient.Client)
type Executor interface {
	Execute(ctx context.Context, stmt *sqlparse.Statement) (*models.Result, error)
}

// HistoryWriter пишет журнал выполнения пачкой
type HistoryWriter interface {
	InsertHistoryBatch(ctx context.Context, rows []models.HistoryRow) error
}

// OffsetCommitter запоминает, до какого места файл выполнен (watcher.Watcher)
type OffsetCommitter interface {
	Commit(job models.StatementJob)
}

type settings struct {
	size     int
	interval time.Duration
}

// Batcher накапливает операторы из отслеживаемых файлов и выполняет их пачками
// batchSize — сколько операторов выполнять за раз
// batchInterval — максимальный интервал между выполнениями
type Batcher struct {
	batchSize     int
	batchInterval time.Duration
	logger        *zap.Logger
	exec          Executor
	history       HistoryWriter
	offsets       OffsetCommitter
	reconf        chan settings
	now           func() time.Time
}

// NewBatcher создает новый batcher; history и offsets могут быть nil
func NewBatcher(cfg config.FollowConfig, logger *zap.Logger, exec Executor, history HistoryWriter, offsets OffsetCommitter) *Batcher {
	return &Batcher{
		batchSize:     cfg.BatchSize,
		batchInterval: cfg.BatchInterval,
		logger:        logger,
		exec:          exec,
		history:       history,
		offsets:       offsets,
		reconf:        make(chan settings, 1),
		now:           time.Now,
	}
}

// Reconfigure меняет размер пачки и интервал на лету, например после перечитывания конфига
func (b *Batcher) Reconfigure(cfg config.FollowConfig) {
	s := settings{size: cfg.BatchSize, interval: cfg.BatchInterval}
	select {
	case b.reconf <- s:
	default:
		// предыдущие настройки ещё не применены: заменяем их
		select {
		case <-b.reconf:
		default:
		}
		b.reconf <- s
	}
}

// Run собирает пачки и выполняет их, пока не отменён ctx или не закрыт in
func (b *Batcher) Run(ctx context.Context, in <-chan models.StatementJob) error {
	batch := make([]models.StatementJob, 0, b.batchSize)
	timer := time.NewTimer(b.batchInterval)
	defer timer.Stop()

	// начатая пачка доводится до конца даже после сигнала остановки
	execCtx := context.WithoutCancel(ctx)
	flush := func(reason string) {
		if len(batch) == 0 {
			return
		}
		b.logger.Info("Выполняем пачку операторов", zap.Int("count", len(batch)), zap.String("reason", reason))
		b.flush(execCtx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush("graceful shutdown")
			return nil
		case job, ok := <-in:
			if !ok {
				flush("input closed")
				return nil
			}
			batch = append(batch, job)
			if len(batch) >= b.batchSize {
				flush("batch size reached")
				timer.Reset(b.batchInterval)
			}
		case <-timer.C:
			flush("interval")
			timer.Reset(b.batchInterval)
		case s := <-b.reconf:
			b.logger.Info("Новые параметры пачки", zap.Int("batchSize", s.size), zap.Duration("batchInterval", s.interval))
			if s.size > 0 {
				b.batchSize = s.size
			}
			if s.interval > 0 {
				b.batchInterval = s.interval
			}
			if len(batch) >= b.batchSize {
				flush("batch size reached")
			}
			timer.Reset(b.batchInterval)
		}
	}
}

// flush выполняет операторы строго по порядку.
// Смещение сдвигается и после ошибки: ошибка уходит в журнал, файл не застревает на одном операторе.
// Отменённый оператор не выполнен: на нём пачка останавливается, смещения дальше не сдвигаются.
func (b *Batcher) flush(ctx context.Context, jobs []models.StatementJob) {
	rows := make([]models.HistoryRow, 0, len(jobs))
	failed := 0
	for i, job := range jobs {
		if job.Statement == nil || job.Statement.Keyword == sqlparse.KeywordMetaCommand {
			continue
		}
		executedAt := b.now()
		res, err := b.exec.Execute(ctx, job.Statement)
		if errors.Is(err, context.Canceled) {
			b.logger.Warn("Выполнение пачки прервано, операторы будут выполнены после перезапуска",
				zap.String("file", job.File),
				zap.Int64("offset", job.Offset),
				zap.Int("skipped", len(jobs)-i))
			break
		}
		if err != nil {
			failed++
			b.logger.Error("Ошибка выполнения оператора",
				zap.String("file", job.File),
				zap.Int64("offset", job.Offset),
				zap.String("status", transform.CommandTag(job.Statement)),
				zap.Error(err))
		}
		rows = append(rows, transform.ToHistoryRow(job, res, err, executedAt))
		if b.offsets != nil {
			b.offsets.Commit(job)
		}
	}

	if b.history != nil && len(rows) > 0 {
		if err := b.history.InsertHistoryBatch(ctx, rows); err != nil {
			b.logger.Error("Ошибка при записи журнала в ClickHouse", zap.Error(err))
		}
	}
	b.logger.Info("Пачка выполнена", zap.Int("count", len(rows)), zap.Int("failed", failed))
}
