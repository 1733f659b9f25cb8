package repl

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"
)

const (
	historyFileName = ".sqlpump_history"
	maxLineSize     = 16 << 20
)

// LineReader — источник строк для Run.
// ReadLine возвращает io.EOF в конце ввода и ErrAborted на Ctrl-C.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	AddHistory(entry string)
	Interactive() bool
	Close() error
}

// TerminalReader — интерактивный ввод через liner с историей в файле
type TerminalReader struct {
	state       *liner.State
	historyPath string
	logger      *zap.Logger
}

// NewTerminalReader открывает терминал; пустой historyPath означает ~/.sqlpump_history
func NewTerminalReader(historyPath string, logger *zap.Logger) *TerminalReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetMultiLineMode(true)

	if historyPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			historyPath = filepath.Join(home, historyFileName)
		}
	}
	t := &TerminalReader{state: state, historyPath: historyPath, logger: logger}
	t.loadHistory()
	return t
}

func (t *TerminalReader) ReadLine(prompt string) (string, error) {
	line, err := t.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrAborted
	}
	return line, err
}

func (t *TerminalReader) AddHistory(entry string) {
	if entry != "" {
		t.state.AppendHistory(entry)
	}
}

func (t *TerminalReader) Interactive() bool { return true }

func (t *TerminalReader) Close() error {
	t.saveHistory()
	return t.state.Close()
}

func (t *TerminalReader) loadHistory() {
	if t.historyPath == "" {
		return
	}
	f, err := os.Open(t.historyPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("Не удалось открыть историю", zap.String("path", t.historyPath), zap.Error(err))
		}
		return
	}
	defer f.Close()
	if _, err := t.state.ReadHistory(f); err != nil {
		t.logger.Warn("Не удалось прочитать историю", zap.String("path", t.historyPath), zap.Error(err))
	}
}

func (t *TerminalReader) saveHistory() {
	if t.historyPath == "" {
		return
	}
	f, err := os.Create(t.historyPath)
	if err != nil {
		t.logger.Warn("Не удалось сохранить историю", zap.String("path", t.historyPath), zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := t.state.WriteHistory(f); err != nil {
		t.logger.Warn("Не удалось записать историю", zap.String("path", t.historyPath), zap.Error(err))
	}
}

// ScannerReader читает строки из файла или канала без приглашения
type ScannerReader struct {
	sc     *bufio.Scanner
	closer io.Closer
}

func NewScannerReader(r io.Reader) *ScannerReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	s := &ScannerReader{sc: sc}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenScriptReader открывает SQL-файл для \i и -f
func OpenScriptReader(path string) (*ScannerReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewScannerReader(f), nil
}

func (s *ScannerReader) ReadLine(string) (string, error) {
	if s.sc.Scan() {
		return strings.TrimSuffix(s.sc.Text(), "\r"), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *ScannerReader) AddHistory(string) {}

func (s *ScannerReader) Interactive() bool { return false }

func (s *ScannerReader) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
