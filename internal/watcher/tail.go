package watcher

import (
	"io"
	"os"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// startTail запускает tail для файла, начиная с сохранённого смещения
func (w *Watcher) startTail(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.files[path]; exists {
		return
	}
	offset := w.processed[path]
	if info, err := os.Stat(path); err == nil && info.Size() < offset {
		// файл пересоздан или обрезан: старое смещение к нему не относится
		w.cfg.Logger.Warn("Файл короче сохранённого смещения, читаем с начала",
			zap.String("file", path), zap.Int64("offset", offset), zap.Int64("size", info.Size()))
		offset = 0
		w.processed[path] = 0
	}
	loc := tail.SeekInfo{Offset: offset, Whence: io.SeekStart}
	t, err := tail.TailFile(path, tail.Config{Follow: true, MustExist: true, Location: &loc, Logger: tail.DiscardingLogger})
	if err != nil {
		w.cfg.Logger.Error("Ошибка открытия tail", zap.String("file", path), zap.Error(err))
		return
	}
	w.files[path] = t
	w.cfg.Logger.Info("Запущен tail для файла", zap.String("file", path), zap.Int64("offset", offset))
	feeder := newFileFeeder(path, offset, w.cfg.Logger)
	feeder.generation = w.nextGeneration(path)
	go w.readTail(feeder, t)
}

// stopTail останавливает tail удалённого файла и забывает его смещение.
// Новый номер запуска отсекает задания, которые ещё лежат в пачке.
func (w *Watcher) stopTail(path string) {
	w.mu.Lock()
	if t, ok := w.files[path]; ok {
		// Kill не ждёт горутину tail: она может стоять на отправке строки
		t.Kill(nil)
		delete(w.files, path)
	}
	delete(w.processed, path)
	w.nextGeneration(path)
	w.mu.Unlock()
	w.Save()
}

func (w *Watcher) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.files {
		t.Kill(nil)
		delete(w.files, path)
	}
}

// readTail читает строки, собирает операторы и отправляет закрытые в канал jobs.
// Смещение сохраняет batcher после выполнения, а не readTail.
func (w *Watcher) readTail(f *fileFeeder, t *tail.Tail) {
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Error("Паника в readTail восстановлена", zap.String("file", f.path), zap.Any("error", r))
		}
		w.mu.Lock()
		if w.files[f.path] == t {
			delete(w.files, f.path)
		}
		w.mu.Unlock()
	}()

	idleFlush := w.follow().IdleFlush
	idle := time.NewTimer(time.Hour)
	idle.Stop()
	defer idle.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				w.cfg.Logger.Warn("Ошибка чтения строки", zap.String("file", f.path), zap.Error(line.Err))
				continue
			}
			for _, job := range f.push(line.Text) {
				select {
				case w.jobs <- job:
				case <-w.ctx.Done():
					return
				}
			}
			if f.pending() && idleFlush > 0 {
				idle.Reset(idleFlush)
			} else {
				idle.Stop()
			}
		case <-idle.C:
			w.cfg.Logger.Warn("Оператор в файле долго не завершается",
				zap.String("file", f.path),
				zap.Int64("offset", f.offset),
				zap.String("expected", f.expected()),
				zap.Duration("idle", idleFlush))
		}
	}
}
