package watcher

import (
	"strings"

	"go.uber.org/zap"

	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/repl"
	"SQLPumpClickHouse/internal/sqlparse"
)

// fileFeeder собирает строки одного файла в операторы.
// offset — позиция сразу за последней прочитанной строкой,
// start — позиция, с которой начался текущий буфер.
type fileFeeder struct {
	path       string
	offset     int64
	start      int64
	generation uint64
	session    *repl.Session
	logger     *zap.Logger
}

func newFileFeeder(path string, offset int64, logger *zap.Logger) *fileFeeder {
	return &fileFeeder{path: path, offset: offset, start: offset, session: repl.NewSession(), logger: logger}
}

// push принимает строку без завершающего "\n".
// Операторы отдаются только когда буфер опустел. Последний оператор получает смещение за строкой,
// остальные — начало буфера: после перезапуска они выполнятся повторно, но не потеряются.
func (f *fileFeeder) push(text string) []models.StatementJob {
	if !f.session.Pending() {
		f.start = f.offset
	}
	f.offset += int64(len(text)) + 1

	clean := strings.TrimSuffix(text, "\r")
	if strings.Contains(clean, "\x00") {
		f.logger.Warn("Обнаружены нулевые байты в строке", zap.String("file", f.path))
		clean = strings.ReplaceAll(clean, "\x00", "")
	}

	stmts, pending := f.session.Feed(clean)
	if pending {
		return nil
	}
	jobs := make([]models.StatementJob, 0, len(stmts))
	for _, stmt := range stmts {
		switch {
		case stmt.Keyword == sqlparse.KeywordMetaCommand:
			f.logger.Warn("Метакоманда в файле пропущена", zap.String("file", f.path), zap.String("command", stmt.MetaCommand()))
		case stmt.Open():
			f.logger.Warn("Оператор без ';' перед метакомандой пропущен", zap.String("file", f.path), zap.String("sql", stmt.SQL()))
		default:
			jobs = append(jobs, models.StatementJob{File: f.path, Offset: f.start, Generation: f.generation, Statement: stmt})
		}
	}
	if len(jobs) > 0 {
		jobs[len(jobs)-1].Offset = f.offset
	}
	return jobs
}

func (f *fileFeeder) pending() bool {
	return f.session.Pending()
}

// expected — чего ждёт незавершённый оператор: кавычки, скобки или ';'
func (f *fileFeeder) expected() string {
	if d := f.session.OpenDelimiter(); d != "" {
		return d
	}
	return ";"
}
