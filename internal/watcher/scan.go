package watcher

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"SQLPumpClickHouse/internal/config"
)

// compilePattern переводит шаблон имени файла (*.sql, deploy_??.sql) в регулярное выражение
func compilePattern(pattern string) (*regexp.Regexp, error) {
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*`, ".*")
	expr = strings.ReplaceAll(expr, `\?`, ".")
	return regexp.Compile("^" + expr + "$")
}

func (w *Watcher) filePattern() *regexp.Regexp {
	pattern := w.follow().FilePattern
	re, err := compilePattern(pattern)
	if err != nil {
		w.cfg.Logger.Error("Неверный FilePattern в конфиге", zap.String("pattern", pattern), zap.Error(err))
		return nil
	}
	return re
}

// watchConfig следит за изменениями config.yaml
func (w *Watcher) watchConfig() {
	if w.cfg.ConfigPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.cfg.Logger.Error("Не удалось создать watcher для конфига", zap.Error(err))
		return
	}
	defer watcher.Close()
	if err := watcher.Add(w.cfg.ConfigPath); err != nil {
		w.cfg.Logger.Error("Не удалось следить за конфигом", zap.String("path", w.cfg.ConfigPath), zap.Error(err))
		return
	}
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reloadConfig()
			}
		case err := <-watcher.Errors:
			w.cfg.Logger.Error("Ошибка watcher-а конфига", zap.Error(err))
		}
	}
}

func (w *Watcher) reloadConfig() {
	w.cfg.Logger.Info("Конфиг изменился, перечитываем", zap.String("path", w.cfg.ConfigPath))
	newCfg, err := config.LoadConfig(w.cfg.ConfigPath)
	if err != nil {
		w.cfg.Logger.Error("Ошибка загрузки config.yaml", zap.Error(err))
		return
	}
	if err := newCfg.ValidateFollow(); err != nil {
		w.cfg.Logger.Error("Новый конфиг не подходит для follow", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.cfg.Config = newCfg
	w.mu.Unlock()
	if w.cfg.OnReload != nil {
		w.cfg.OnReload(newCfg)
	}
	for _, dir := range newCfg.Follow.Directories {
		if err := w.addWatchers(dir, w.dirWatcher); err != nil {
			w.cfg.Logger.Debug("Ошибка при добавлении наблюдателей", zap.String("dir", dir), zap.Error(err))
		}
	}
	w.ScanInitialFiles()
}

// handleDirEvents обрабатывает fsnotify события в папках
func (w *Watcher) handleDirEvents(dw *fsnotify.Watcher) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-dw.Events:
			if !ok {
				return
			}
			w.handleDirEvent(dw, ev)
		case err, ok := <-dw.Errors:
			if !ok {
				return
			}
			w.cfg.Logger.Error("Ошибка watcher для каталогов", zap.Error(err))
		}
	}
}

func (w *Watcher) handleDirEvent(dw *fsnotify.Watcher, ev fsnotify.Event) {
	pattern := w.filePattern()
	if ev.Op&fsnotify.Create != 0 {
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			if err := w.addWatchers(ev.Name, dw); err != nil {
				w.cfg.Logger.Debug("Ошибка при добавлении наблюдателей", zap.String("dir", ev.Name), zap.Error(err))
			}
			for _, path := range matchingFiles(ev.Name, pattern) {
				w.cfg.Logger.Info("Найден файл в новой папке, запускаем tail", zap.String("file", path))
				w.startTail(path)
			}
			return
		}
	}
	if pattern == nil || !pattern.MatchString(filepath.Base(ev.Name)) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// под старым именем файла больше нет
		w.stopTail(ev.Name)
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.startTail(ev.Name)
	}
}

// matchingFiles возвращает файлы каталога, подходящие под шаблон, от старых к новым
func matchingFiles(dir string, pattern *regexp.Regexp) []string {
	if pattern == nil {
		return nil
	}
	type fileWithTime struct {
		Path string
		Mod  time.Time
	}
	var sorted []fileWithTime
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if pattern.MatchString(filepath.Base(path)) {
			sorted = append(sorted, fileWithTime{Path: path, Mod: info.ModTime()})
		}
		return nil
	})
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Mod.Before(sorted[j].Mod)
	})
	paths := make([]string, len(sorted))
	for i, f := range sorted {
		paths[i] = f.Path
	}
	return paths
}

// ScanInitialFiles запускает tail для всех подходящих файлов; уже открытые пропускаются.
// Файлы идут от старых к новым, чтобы миграции выполнялись в порядке появления.
func (w *Watcher) ScanInitialFiles() {
	pattern := w.filePattern()
	if pattern == nil {
		return
	}
	for _, dir := range w.follow().Directories {
		for _, path := range matchingFiles(dir, pattern) {
			w.startTail(path)
		}
	}
}
