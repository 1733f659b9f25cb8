package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/storage"
)

type Config struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Store      storage.ProcessedStore
	// OnReload вызывается после успешного перечитывания конфига
	OnReload func(*config.Config)
}

// Watcher следит за каталогами с SQL-файлами и отдаёт закрытые операторы в канал jobs.
// processed хранит смещение за последним выполненным оператором каждого файла,
// generations — номер текущего запуска tail для файла.
type Watcher struct {
	cfg         Config
	store       storage.ProcessedStore
	jobs        chan<- models.StatementJob
	files       map[string]*tail.Tail
	processed   map[string]int64
	generations map[string]uint64
	lastGen     uint64
	mu          sync.RWMutex
	ctx         context.Context
	dirWatcher  *fsnotify.Watcher
	watchedDirs map[string]struct{} // Отслеживаемые директории
}

func New(cfg Config, jobs chan<- models.StatementJob) *Watcher {
	processed, err := cfg.Store.Load()
	if err != nil {
		cfg.Logger.Error("Не удалось загрузить смещения файлов", zap.Error(err))
		processed = make(map[string]int64)
	}

	return &Watcher{
		cfg:         cfg,
		store:       cfg.Store,
		jobs:        jobs,
		files:       make(map[string]*tail.Tail),
		processed:   processed,
		generations: make(map[string]uint64),
		watchedDirs: make(map[string]struct{}),
	}
}

// Commit запоминает смещение выполненного оператора; смещение файла только растёт.
// Задания от tail, который уже остановлен (файл удалён или пересоздан), смещение не двигают.
func (w *Watcher) Commit(job models.StatementJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen, ok := w.generations[job.File]; ok && gen != job.Generation {
		w.cfg.Logger.Debug("Смещение от прежнего tail пропущено",
			zap.String("file", job.File), zap.Int64("offset", job.Offset))
		return
	}
	if job.Offset > w.processed[job.File] {
		w.processed[job.File] = job.Offset
	}
}

// nextGeneration выдаёт новый номер запуска для файла; вызывается под w.mu
func (w *Watcher) nextGeneration(path string) uint64 {
	w.lastGen++
	w.generations[path] = w.lastGen
	return w.lastGen
}

// Offset возвращает сохранённое смещение файла
func (w *Watcher) Offset(path string) (int64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	offset, ok := w.processed[path]
	return offset, ok
}

func (w *Watcher) follow() config.FollowConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg.Config.Follow
}

// Save сохраняет копию смещений, чтобы не держать блокировку во время записи
func (w *Watcher) Save() {
	w.mu.RLock()
	snapshot := make(map[string]int64, len(w.processed))
	for path, offset := range w.processed {
		snapshot[path] = offset
	}
	w.mu.RUnlock()
	if err := w.store.Save(snapshot); err != nil {
		w.cfg.Logger.Error("Не удалось сохранить смещения файлов", zap.Error(err))
	}
}

// addWatchers ставит fsnotify на dir и все вложенные каталоги
func (w *Watcher) addWatchers(dir string, dw *fsnotify.Watcher) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.cfg.Logger.Debug("Ошибка при обходе директории", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			w.watchDir(path, dw)
		}
		return nil
	})
}

func (w *Watcher) watchDir(path string, dw *fsnotify.Watcher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.watchedDirs[path]; exists {
		return
	}
	if err := dw.Add(path); err != nil {
		w.cfg.Logger.Error("Ошибка добавления наблюдателя", zap.String("dir", path), zap.Error(err))
		return
	}
	w.watchedDirs[path] = struct{}{}
	w.cfg.Logger.Debug("Добавлен наблюдатель для директории", zap.String("dir", path))
}

// runMaintenance пересканирует каталоги раз в RescanInterval и сохраняет смещения раз в SaveInterval.
func (w *Watcher) runMaintenance() {
	follow := w.follow()
	rescan := time.NewTicker(follow.RescanInterval)
	defer rescan.Stop()
	save := time.NewTicker(follow.SaveInterval)
	defer save.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-rescan.C:
			w.cfg.Logger.Debug("Периодическое сканирование директорий")
			w.ScanInitialFiles()
		case <-save.C:
			w.Save()
		}
	}
}

// Start блокируется до отмены ctx; при выходе останавливает tail и сохраняет смещения
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx

	dw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create directory watcher: %w", err)
	}
	w.dirWatcher = dw
	defer dw.Close()

	for _, dir := range w.follow().Directories {
		if err := w.addWatchers(dir, dw); err != nil {
			w.cfg.Logger.Debug("Ошибка при добавлении наблюдателей", zap.String("dir", dir), zap.Error(err))
		}
	}

	w.ScanInitialFiles()

	go w.handleDirEvents(dw)
	go w.watchConfig()
	go w.runMaintenance()

	<-ctx.Done()
	w.cfg.Logger.Info("Watcher остановлен по сигналу shutdown")
	w.stopAll()
	w.Save()
	return nil
}
