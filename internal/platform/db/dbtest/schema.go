package dbtest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/feedmod/feedmod/internal/platform/db"
)

// Column describes one column of the embedded schema.
type Column struct {
	Name    string
	NotNull bool
}

var (
	createTableRe = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)
	insertRe      = regexp.MustCompile(`(?s)INSERT INTO (\w+) \(([^)]*)\)\s*VALUES \((.*?)\)\s*(ON CONFLICT|$)`)
)

// Columns returns the columns of table as declared by the embedded migrations.
func Columns(table string) (map[string]Column, error) {
	migrations, err := db.Migrations()
	if err != nil {
		return nil, err
	}
	for _, m := range migrations {
		for _, match := range createTableRe.FindAllStringSubmatch(m.SQL, -1) {
			if match[1] != table {
				continue
			}
			cols := make(map[string]Column)
			for _, line := range strings.Split(match[2], "\n") {
				fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), ","))
				if len(fields) < 2 || fields[0] == "CONSTRAINT" {
					continue
				}
				cols[fields[0]] = Column{Name: fields[0], NotNull: strings.Contains(line, "NOT NULL") || strings.Contains(line, "PRIMARY KEY")}
			}
			return cols, nil
		}
	}
	return nil, fmt.Errorf("dbtest: table %s not in schema", table)
}

// NullWrites inspects an INSERT statement and returns the NOT NULL columns it
// may write NULL into, either with a NULL literal or a NULLIF expression.
func NullWrites(sql string) ([]string, error) {
	match := insertRe.FindStringSubmatch(sql)
	if match == nil {
		return nil, fmt.Errorf("dbtest: not an INSERT: %q", sql)
	}
	cols, err := Columns(match[1])
	if err != nil {
		return nil, err
	}
	names := splitTopLevel(match[2])
	exprs := splitTopLevel(match[3])
	if len(names) != len(exprs) {
		return nil, fmt.Errorf("dbtest: %d columns but %d values", len(names), len(exprs))
	}
	var bad []string
	for i, name := range names {
		col, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("dbtest: column %s.%s not in schema", match[1], name)
		}
		expr := strings.ToUpper(exprs[i])
		if col.NotNull && (expr == "NULL" || strings.HasPrefix(expr, "NULLIF(")) {
			bad = append(bad, name)
		}
	}
	return bad, nil
}

func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		start int
		quote bool
	)
	for i, r := range s {
		switch {
		case r == '\'':
			quote = !quote
		case quote:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}
