package transform

import (
	"strings"
	"time"

	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/sqlparse"
)

// CommandTag строит строку статуса по ключевому слову и объекту оператора:
// "CREATE TABLE foo", "DROP VIEW v", "INSERT", "OK" для неизвестных.
func CommandTag(stmt *sqlparse.Statement) string {
	switch stmt.Keyword {
	case sqlparse.KeywordUnknown:
		return "OK"
	case sqlparse.KeywordMetaCommand:
		return ""
	}
	parts := []string{strings.ToUpper(string(stmt.Keyword))}
	if stmt.ObjectType != "" {
		parts = append(parts, stmt.ObjectType)
	}
	if stmt.Object != "" {
		parts = append(parts, stmt.Object)
	}
	return strings.Join(parts, " ")
}

// ToHistoryRow превращает выполненный оператор в строку журнала.
// err — ошибка выполнения, res может быть nil.
func ToHistoryRow(job models.StatementJob, res *models.Result, err error, executedAt time.Time) models.HistoryRow {
	stmt := job.Statement
	row := models.HistoryRow{
		ExecutedAt: executedAt,
		EventDate:  executedAt.Format("2006-01-02"),
		Source:     job.File,
		Keyword:    string(stmt.Keyword),
		ObjectType: stmt.ObjectType,
		Object:     stmt.Object,
		SQLText:    stmt.SQL(),
		Status:     CommandTag(stmt),
	}
	if res != nil {
		row.Duration = uint32(res.Duration.Milliseconds())
	}
	if err != nil {
		text := err.Error()
		row.ErrorText = &text
		row.Status = "ERROR"
	}
	return row
}
