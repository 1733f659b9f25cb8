package sqllex

// Kind — категория токена
type Kind int

const (
	Error Kind = iota
	End
	Open
	Comment
	String
	QuotedIdent
	MetaCommand
	Word
	Float
	Integer
	Separator
	OpenParen
	CloseParen
	Semicolon
	Operator
	Unknown
)

var kindNames = map[Kind]string{
	Error:       "error",
	End:         "end",
	Open:        "open",
	Comment:     "comment",
	String:      "string",
	QuotedIdent: "quoted_ident",
	MetaCommand: "meta_command",
	Word:        "word",
	Float:       "float",
	Integer:     "integer",
	Separator:   "separator",
	OpenParen:   "open_paren",
	CloseParen:  "close_paren",
	Semicolon:   "semicolon",
	Operator:    "operator",
	Unknown:     "unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(?)"
}

// Terminal — после этого токена поток заканчивается
func (k Kind) Terminal() bool {
	return k == End || k == Open || k == Error
}

// Token — один лексический элемент.
// Value — декодированное значение (например, строка без кавычек и с раскрытым ''),
// Raw — точный срез исходного текста вместе с поглощёнными ведущими пробелами.
type Token struct {
	Kind  Kind
	Value string
	Raw   string
}
