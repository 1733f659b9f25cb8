package sqlparse

import (
	"strings"

	"SQLPumpClickHouse/internal/sqllex"
)

// Keyword — класс оператора по первому токену
type Keyword string

const (
	KeywordSelect      Keyword = "select"
	KeywordInsert      Keyword = "insert"
	KeywordUpdate      Keyword = "update"
	KeywordDelete      Keyword = "delete"
	KeywordTruncate    Keyword = "truncate"
	KeywordCreate      Keyword = "create"
	KeywordAlter       Keyword = "alter"
	KeywordDrop        Keyword = "drop"
	KeywordGrant       Keyword = "grant"
	KeywordRevoke      Keyword = "revoke"
	KeywordExplain     Keyword = "explain"
	KeywordMetaCommand Keyword = "meta_command"
	KeywordUnknown     Keyword = "unknown"
)

var keywords = map[string]Keyword{
	"select":   KeywordSelect,
	"insert":   KeywordInsert,
	"update":   KeywordUpdate,
	"delete":   KeywordDelete,
	"truncate": KeywordTruncate,
	"create":   KeywordCreate,
	"alter":    KeywordAlter,
	"drop":     KeywordDrop,
	"grant":    KeywordGrant,
	"revoke":   KeywordRevoke,
	"explain":  KeywordExplain,
}

// Слова между ключевым словом DDL и именем объекта.
// Вид объекта (TABLE, VIEW, ...) сохраняется в ObjectType.
var objectKinds = map[string]bool{
	"table":      true,
	"view":       true,
	"index":      true,
	"database":   true,
	"schema":     true,
	"dictionary": true,
	"function":   true,
	"sequence":   true,
	"user":       true,
	"role":       true,
	"quota":      true,
	"policy":     true,
}

var objectModifiers = map[string]bool{
	"or":           true,
	"replace":      true,
	"unique":       true,
	"materialized": true,
	"live":         true,
	"window":       true,
	"if":           true,
	"not":          true,
	"exists":       true,
	"only":         true,
	"global":       true,
	"local":        true,
	"unlogged":     true,
	"row":          true,
	"settings":     true,
}

// Statement — один оператор, собранный из токенов.
// Keyword, Object и ObjectType вычисляются один раз при завершении оператора.
type Statement struct {
	Tokens     []sqllex.Token
	Raw        string
	Keyword    Keyword
	Object     string
	ObjectType string

	openQuote  string
	terminated bool
	depth      int

	raw strings.Builder
}

func (s *Statement) append(tok sqllex.Token) {
	s.Tokens = append(s.Tokens, tok)
	s.raw.WriteString(tok.Raw)
}

// Values — декодированные значения токенов по порядку
func (s *Statement) Values() []string {
	values := make([]string, len(s.Tokens))
	for i, tok := range s.Tokens {
		values[i] = tok.Value
	}
	return values
}

// Open — оператор ещё не закрыт: висит кавычка, нет ';' или не закрыты скобки.
// Метакоманда никогда не бывает открытой.
func (s *Statement) Open() bool {
	if s.Keyword == KeywordMetaCommand {
		return false
	}
	return s.openQuote != "" || !s.terminated || s.depth != 0
}

// OpenDelimiter — что именно мешает закрытию: кавычка, "(" или "" (просто нет ';').
func (s *Statement) OpenDelimiter() string {
	if s.openQuote != "" {
		return s.openQuote
	}
	if s.depth > 0 {
		return "("
	}
	return ""
}

func (s *Statement) Terminated() bool { return s.terminated }

func (s *Statement) Depth() int { return s.depth }

// SQL — текст для отправки на сервер: без обрамляющих пробелов и завершающей ';'
func (s *Statement) SQL() string {
	text := strings.TrimSpace(s.Raw)
	if s.terminated {
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}
	return text
}

// MetaCommand — текст метакоманды без завершающей ';' или "" для SQL
func (s *Statement) MetaCommand() string {
	if s.Keyword != KeywordMetaCommand {
		return ""
	}
	return s.Tokens[0].Value
}

func (s *Statement) finalize() {
	s.Raw = s.raw.String()
	s.Keyword = classify(s.Tokens)
	s.ObjectType, s.Object = objectName(s.Keyword, s.Tokens)
}

func classify(tokens []sqllex.Token) Keyword {
	if len(tokens) == 0 {
		return KeywordUnknown
	}
	switch first := tokens[0]; first.Kind {
	case sqllex.MetaCommand:
		return KeywordMetaCommand
	case sqllex.Word:
		if kw, ok := keywords[strings.ToLower(first.Value)]; ok {
			return kw
		}
	}
	return KeywordUnknown
}

// objectName ищет имя объекта для CREATE/DROP/ALTER/TRUNCATE.
// TEMP/TEMPORARY, модификаторы и вид объекта пропускаются; имя вида db.table склеивается.
func objectName(kw Keyword, tokens []sqllex.Token) (objectType, name string) {
	switch kw {
	case KeywordCreate, KeywordDrop, KeywordAlter, KeywordTruncate:
	default:
		return "", ""
	}
	i := 1
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Kind != sqllex.Word {
			break
		}
		word := strings.ToLower(tok.Value)
		switch {
		case strings.HasPrefix(word, "temp") && objectType == "" && nextIsWord(tokens, i):
		case objectModifiers[word]:
		case objectKinds[word] && objectType == "":
			objectType = strings.ToUpper(word)
		default:
			return objectType, qualifiedName(tokens[i:])
		}
	}
	if i < len(tokens) && tokens[i].Kind == sqllex.QuotedIdent {
		return objectType, qualifiedName(tokens[i:])
	}
	return objectType, ""
}

func qualifiedName(tokens []sqllex.Token) string {
	parts := []string{tokens[0].Value}
	for i := 1; i+1 < len(tokens); i += 2 {
		if tokens[i].Kind != sqllex.Separator || !isName(tokens[i+1]) {
			break
		}
		parts = append(parts, tokens[i+1].Value)
	}
	return strings.Join(parts, ".")
}

// nextIsWord отличает модификатор TEMP от таблицы с именем вроде temperatures
func nextIsWord(tokens []sqllex.Token, i int) bool {
	return i+1 < len(tokens) && tokens[i+1].Kind == sqllex.Word
}

func isName(tok sqllex.Token) bool {
	return tok.Kind == sqllex.Word || tok.Kind == sqllex.QuotedIdent
}
