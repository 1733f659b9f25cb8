package repl

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// emptyRowValue печатается вместо NULL-значения
	emptyRowValue = "NULL"
	// emptyHeaderValue печатается вместо пустого имени колонки
	emptyHeaderValue = "<anonymous>"
)

// printRows выравнивает результат запроса в таблицу в стиле psql
func printRows(header []string, rows [][]*string) string {
	var b strings.Builder
	if len(header) > 0 {
		widths := getWidths(header, rows)
		b.WriteString(printHeader(header, widths))
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(printRow(row, widths))
			b.WriteString("\n")
		}
	}
	label := "rows"
	if len(rows) == 1 {
		label = "row"
	}
	fmt.Fprintf(&b, "(%d %s)\n", len(rows), label)
	return b.String()
}

func getWidths(header []string, rows [][]*string) []int {
	widths := make([]int, len(header))
	for i, hCol := range header {
		size := utf8.RuneCountInString(emptyHeaderValue)
		if hCol != "" {
			size = utf8.RuneCountInString(hCol)
		}
		widths[i] = size
	}
	for _, row := range rows {
		for i, column := range row {
			if i >= len(widths) {
				break
			}
			size := utf8.RuneCountInString(emptyRowValue)
			if column != nil {
				size = utf8.RuneCountInString(*column)
			}
			if widths[i] < size {
				widths[i] = size
			}
		}
	}
	return widths
}

func printHeader(header []string, widths []int) string {
	var b strings.Builder
	for i, column := range header {
		v := emptyHeaderValue
		if column != "" {
			v = column
		}
		fmt.Fprintf(&b, " %-*s ", widths[i], v)
		if i != len(header)-1 {
			b.WriteString("|")
		}
	}
	b.WriteString("\n")
	for i := range header {
		fmt.Fprintf(&b, "-%s-", strings.Repeat("-", widths[i]))
		if i != len(header)-1 {
			b.WriteString("+")
		}
	}
	return b.String()
}

func printRow(row []*string, widths []int) string {
	var b strings.Builder
	for i, column := range row {
		if i >= len(widths) {
			break
		}
		v := emptyRowValue
		if column != nil {
			v = *column
		}
		fmt.Fprintf(&b, " %-*s ", widths[i], v)
		if i != len(widths)-1 {
			b.WriteString("|")
		}
	}
	return b.String()
}
