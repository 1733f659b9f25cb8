package models

import (
	"time"

	"SQLPumpClickHouse/internal/sqlparse"
)

// Result — результат выполнения одного оператора.
// Columns и Rows заполнены только для запросов, возвращающих строки.
type Result struct {
	Columns  []string
	Rows     [][]*string
	HasRows  bool
	Duration time.Duration
}

// StatementJob — закрытый оператор из отслеживаемого файла.
// Offset — позиция, с которой чтение файла можно продолжить после выполнения оператора.
// Generation — номер запуска tail для файла; смещение от прежнего запуска не принимается.
type StatementJob struct {
	File       string
	Offset     int64
	Generation uint64
	Statement  *sqlparse.Statement
}

// HistoryRow — строка журнала выполненных операторов в ClickHouse
type HistoryRow struct {
	ExecutedAt time.Time
	EventDate  string
	Source     string
	Keyword    string
	ObjectType string
	Object     string
	SQLText    string
	Status     string
	Duration   uint32
	ErrorText  *string
}
