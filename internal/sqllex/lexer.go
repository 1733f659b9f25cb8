// Package sqllex разбивает SQL-текст на токены без знания грамматики.
//
// Лексер не хранит состояния между вызовами: каждый вызов получает весь
// оставшийся текст и возвращает следующий токен и необработанный остаток.
// Незакрытая строка или идентификатор в кавычках даёт токен Open, остаток
// которого совпадает с его Raw, поэтому повторный разбор того же текста
// (после дописывания следующей строки ввода) воспроизводит тот же результат.
package sqllex

import "strings"

const (
	operatorChars = "+-*/%|,"
	commentPrefix = "--"
)

// matcher пробует распознать токен, начинающийся с позиции p (пробелы уже пропущены).
// Возвращает вид токена, значение и позицию сразу за токеном.
type matcher func(src string, p int) (kind Kind, value string, end int, ok bool)

// Порядок важен: первый сработавший matcher определяет токен.
var matchers = []matcher{
	matchComment,
	matchString,
	matchQuotedIdent,
	matchMetaCommand,
	matchWord,
	matchFloat,
	matchInteger,
	matchSeparator,
	matchPunctuation,
	matchOperator,
	matchUnknown,
	matchEnd,
}

// scanner — курсор по неизменяемому буферу
type scanner struct {
	src string
	pos int
}

func newScanner(src string) *scanner {
	return &scanner{src: src}
}

// scanOne читает один токен, включая комментарии.
func (s *scanner) scanOne() Token {
	start := s.pos
	p := skipSpace(s.src, start)
	for _, m := range matchers {
		kind, value, end, ok := m(s.src, p)
		if !ok {
			continue
		}
		s.pos = end
		return Token{Kind: kind, Value: value, Raw: s.src[start:end]}
	}
	return Token{Kind: Error, Raw: s.src[start:]}
}

// lex читает следующий значимый токен. Текст пропущенных комментариев
// остаётся в Raw возвращённого токена.
func (s *scanner) lex() Token {
	start := s.pos
	for {
		before := s.pos
		tok := s.scanOne()
		if tok.Kind != Comment {
			tok.Raw = s.src[start:s.pos]
			if tok.Kind == Open || tok.Kind == Error {
				tok.Raw = s.src[start:]
			}
			return tok
		}
		if s.pos == before {
			return Token{Kind: Error, Raw: s.src[start:]}
		}
	}
}

// LexOne возвращает следующий токен текста (комментарий тоже считается токеном)
// и остаток после него. Для End остаток пустой, для Open — равен Raw токена.
func LexOne(text string) (Token, string) {
	s := newScanner(text)
	return finish(s.scanOne(), s)
}

// Lex как LexOne, но пропускает комментарии.
func Lex(text string) (Token, string) {
	s := newScanner(text)
	return finish(s.lex(), s)
}

func finish(tok Token, s *scanner) (Token, string) {
	switch tok.Kind {
	case End:
		return tok, ""
	case Open, Error:
		return tok, tok.Raw
	}
	return tok, s.src[s.pos:]
}

// Stream разбирает весь текст до терминального токена (End, Open или Error)
// включительно. Конкатенация Raw всех токенов равна исходному тексту.
func Stream(text string) []Token {
	s := newScanner(text)
	var out []Token
	for {
		before := s.pos
		tok := s.lex()
		if !tok.Kind.Terminal() && s.pos == before {
			// matcher не продвинул курсор — это ошибка в правилах, а не во вводе
			tok = Token{Kind: Error, Raw: s.src[before:]}
		}
		out = append(out, tok)
		if tok.Kind.Terminal() {
			return out
		}
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	return isWordStart(c) || isDigit(c)
}

func isOperatorChar(c byte) bool {
	return strings.IndexByte(operatorChars, c) >= 0
}

// startsToken — может ли с этого байта начаться любой токен, кроме Unknown
func startsToken(c byte) bool {
	switch c {
	case '\'', '"', '\\', '.', '(', ')', ';':
		return true
	}
	return isSpace(c) || isWordChar(c) || isOperatorChar(c)
}

func skipSpace(src string, p int) int {
	for p < len(src) && isSpace(src[p]) {
		p++
	}
	return p
}

func skipDigits(src string, p int) int {
	for p < len(src) && isDigit(src[p]) {
		p++
	}
	return p
}

func matchComment(src string, p int) (Kind, string, int, bool) {
	if !strings.HasPrefix(src[p:], commentPrefix) {
		return 0, "", 0, false
	}
	end := len(src)
	if nl := strings.IndexByte(src[p:], '\n'); nl >= 0 {
		end = p + nl + 1
	}
	return Comment, src[p:end], end, true
}

func matchString(src string, p int) (Kind, string, int, bool) {
	return matchDelimited(src, p, '\'', String)
}

func matchQuotedIdent(src string, p int) (Kind, string, int, bool) {
	return matchDelimited(src, p, '"', QuotedIdent)
}

// matchDelimited разбирает литерал в кавычках delim, где удвоенный delim
// означает один символ delim внутри значения.
func matchDelimited(src string, p int, delim byte, kind Kind) (Kind, string, int, bool) {
	if p >= len(src) || src[p] != delim {
		return 0, "", 0, false
	}
	var value strings.Builder
	i := p + 1
	for {
		j := strings.IndexByte(src[i:], delim)
		if j < 0 {
			return Open, string(delim), len(src), true
		}
		value.WriteString(src[i : i+j])
		i += j + 1
		if i < len(src) && src[i] == delim {
			value.WriteByte(delim)
			i++
			continue
		}
		return kind, value.String(), i, true
	}
}

// matchMetaCommand: обратный слеш и всё до ';' или конца строки.
// Завершающая ';' попадает в Raw, но не в значение.
func matchMetaCommand(src string, p int) (Kind, string, int, bool) {
	if p >= len(src) || src[p] != '\\' {
		return 0, "", 0, false
	}
	end := p + 1
	for end < len(src) && src[end] != ';' && src[end] != '\n' {
		end++
	}
	value := strings.TrimRight(src[p:end], " \t\r")
	if end < len(src) && src[end] == ';' {
		end++
	}
	return MetaCommand, value, end, true
}

func matchWord(src string, p int) (Kind, string, int, bool) {
	if p >= len(src) || !isWordStart(src[p]) {
		return 0, "", 0, false
	}
	end := p + 1
	for end < len(src) && isWordChar(src[end]) {
		end++
	}
	return Word, src[p:end], end, true
}

// matchFloat: -?D+.D* | -?D*.D+
func matchFloat(src string, p int) (Kind, string, int, bool) {
	i := p
	if i < len(src) && src[i] == '-' {
		i++
	}
	intEnd := skipDigits(src, i)
	if intEnd >= len(src) || src[intEnd] != '.' {
		return 0, "", 0, false
	}
	fracEnd := skipDigits(src, intEnd+1)
	if intEnd == i && fracEnd == intEnd+1 {
		return 0, "", 0, false
	}
	return Float, src[p:fracEnd], fracEnd, true
}

func matchInteger(src string, p int) (Kind, string, int, bool) {
	i := p
	if i < len(src) && src[i] == '-' {
		i++
	}
	end := skipDigits(src, i)
	if end == i {
		return 0, "", 0, false
	}
	return Integer, src[p:end], end, true
}

func matchSeparator(src string, p int) (Kind, string, int, bool) {
	if p >= len(src) || src[p] != '.' {
		return 0, "", 0, false
	}
	return Separator, ".", p + 1, true
}

func matchPunctuation(src string, p int) (Kind, string, int, bool) {
	if p >= len(src) {
		return 0, "", 0, false
	}
	switch src[p] {
	case '(':
		return OpenParen, "(", p + 1, true
	case ')':
		return CloseParen, ")", p + 1, true
	case ';':
		return Semicolon, ";", p + 1, true
	}
	return 0, "", 0, false
}

// matchOperator берёт максимальную серию операторных символов,
// но останавливается перед началом комментария "--".
func matchOperator(src string, p int) (Kind, string, int, bool) {
	end := p
	for end < len(src) && isOperatorChar(src[end]) {
		if end > p && strings.HasPrefix(src[end:], commentPrefix) {
			break
		}
		end++
	}
	if end == p {
		return 0, "", 0, false
	}
	return Operator, src[p:end], end, true
}

// matchUnknown забирает всё, что не может начать другой токен: '=', '<', '$' и т.п.
func matchUnknown(src string, p int) (Kind, string, int, bool) {
	end := p
	for end < len(src) && !startsToken(src[end]) {
		end++
	}
	if end == p {
		return 0, "", 0, false
	}
	return Unknown, src[p:end], end, true
}

func matchEnd(src string, p int) (Kind, string, int, bool) {
	if p < len(src) {
		return 0, "", 0, false
	}
	return End, "", len(src), true
}
