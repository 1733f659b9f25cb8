// Package sqlparse группирует токены sqllex в операторы и решает,
// закрыт ли последний из них.
//
// Parse — чистая функция: REPL передаёт ей весь накопленный буфер после
// каждой новой строки и, если последний оператор открыт, дочитывает ещё.
package sqlparse

import (
	"fmt"

	"SQLPumpClickHouse/internal/sqllex"
)

// Parse разбирает текст целиком и возвращает операторы в порядке следования.
// Последний оператор может остаться открытым.
func Parse(text string) []*Statement {
	var stmts []*Statement
	var cur *Statement

	emit := func() {
		if cur == nil {
			return
		}
		cur.finalize()
		stmts = append(stmts, cur)
		cur = nil
	}

	for _, tok := range sqllex.Stream(text) {
		switch tok.Kind {
		case sqllex.End:
			emit()
			return stmts
		case sqllex.Error:
			// правила лексера тотальны, сюда попасть нельзя
			panic(fmt.Sprintf("sqlparse: lexer produced error token at %q", tok.Raw))
		case sqllex.MetaCommand:
			emit()
			cur = &Statement{}
			cur.append(tok)
			emit()
			continue
		}

		if cur == nil {
			cur = &Statement{}
		}
		cur.append(tok)

		switch tok.Kind {
		case sqllex.Open:
			cur.openQuote = tok.Value
			emit()
			return stmts
		case sqllex.OpenParen:
			cur.depth++
		case sqllex.CloseParen:
			if cur.depth > 0 {
				cur.depth--
			}
		case sqllex.Semicolon:
			if cur.depth == 0 {
				cur.terminated = true
				emit()
			}
		}
	}
	emit()
	return stmts
}

// Pending — последний оператор открыт, нужно дочитать ввод
func Pending(stmts []*Statement) bool {
	return len(stmts) > 0 && stmts[len(stmts)-1].Open()
}
