package repl

import (
	"strings"

	"SQLPumpClickHouse/internal/sqlparse"
)

// Session накапливает строки ввода, пока последний оператор буфера открыт.
// Каждый вызов Feed заново разбирает весь буфер: парсер не хранит состояния.
type Session struct {
	buf     strings.Builder
	pending *sqlparse.Statement
}

func NewSession() *Session {
	return &Session{}
}

// Feed добавляет строку (без перевода строки) и возвращает готовые операторы.
// pending == true означает, что нужно читать дальше, а буфер сохранён.
func (s *Session) Feed(line string) (ready []*sqlparse.Statement, pending bool) {
	stmts := s.parse(line)
	if sqlparse.Pending(stmts) {
		s.pending = stmts[len(stmts)-1]
		return nil, true
	}
	s.Reset()
	return stmts, false
}

// FeedReady как Feed, но закрытые операторы перед открытым отдаются сразу,
// а в буфере остаётся только открытый хвост.
func (s *Session) FeedReady(line string) (ready []*sqlparse.Statement, pending bool) {
	stmts := s.parse(line)
	if !sqlparse.Pending(stmts) {
		s.Reset()
		return stmts, false
	}
	last := len(stmts) - 1
	s.pending = stmts[last]
	if last == 0 {
		return nil, true
	}
	// хвост без кавычки теряет завершающие пробелы, перевод строки возвращаем
	tail := s.pending.Raw
	if !strings.HasSuffix(tail, "\n") {
		tail += "\n"
	}
	s.buf.Reset()
	s.buf.WriteString(tail)
	return stmts[:last], true
}

func (s *Session) parse(line string) []*sqlparse.Statement {
	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
	return sqlparse.Parse(s.buf.String())
}

// Seed кладёт текст обратно в буфер, например незавершённый запрос перед метакомандой
func (s *Session) Seed(text string) {
	s.Reset()
	if strings.TrimSpace(text) == "" {
		return
	}
	s.Feed(strings.TrimRight(text, "\n"))
}

func (s *Session) Reset() {
	s.buf.Reset()
	s.pending = nil
}

func (s *Session) Pending() bool {
	return s.pending != nil
}

// OpenDelimiter — кавычка или скобка, которую ждёт открытый оператор
func (s *Session) OpenDelimiter() string {
	if s.pending == nil {
		return ""
	}
	return s.pending.OpenDelimiter()
}

func (s *Session) Buffer() string {
	return s.buf.String()
}
