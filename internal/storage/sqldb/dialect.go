// Package sqldb implements storage.Repository over database/sql. The SQLite,
// SQL Server and MySQL backends share it and differ only in their Dialect.
package sqldb

import (
	"strconv"
	"strings"
)

// Dialect captures what differs between database/sql backends.
type Dialect struct {
	// Name labels errors and logs ("sqlite", "mssql", "mysql").
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// IsUniqueViolation recognizes the driver's unique-constraint error.
	IsUniqueViolation func(error) bool
	// First wraps a SELECT body so that at most one row is returned.
	First func(columns, rest string) string
	// Schema holds the idempotent DDL statements for the backend.
	Schema []string
	// MaxParams caps the bind parameters of one statement. Zero selects
	// DefaultMaxParams.
	MaxParams int
}

// DefaultMaxParams fits SQLite builds compiled with the historic 999 limit.
const DefaultMaxParams = 999

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

// AtP is the SQL Server "@pN" placeholder style.
func AtP(n int) string { return "@p" + strconv.Itoa(n) }

// Limit1 renders "SELECT cols rest LIMIT 1".
func Limit1(columns, rest string) string {
	return "SELECT " + columns + " " + rest + " LIMIT 1"
}

// Top1 renders "SELECT TOP 1 cols rest".
func Top1(columns, rest string) string {
	return "SELECT TOP 1 " + columns + " " + rest
}

// SplitStatements splits a DDL script on lines ending with ';'. Empty
// statements and comment-only chunks are dropped.
func SplitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" {
			return
		}
		body := false
		for _, line := range strings.Split(s, "\n") {
			l := strings.TrimSpace(line)
			if l != "" && !strings.HasPrefix(l, "--") {
				body = true
				break
			}
		}
		if body {
			out = append(out, strings.TrimSuffix(s, ";"))
		}
	}
	for _, line := range strings.Split(script, "\n") {
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			flush()
		}
	}
	flush()
	return out
}

// placeholders renders n consecutive placeholders starting at from.
// keysPerQuery is how many natural keys fit in one ExistingKeys statement.
func (d Dialect) keysPerQuery() int {
	n := d.MaxParams
	if n <= 0 {
		n = DefaultMaxParams
	}
	if n < 3 {
		return 1
	}
	return n / 3
}

func (d Dialect) placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = d.Placeholder(from + i)
	}
	return strings.Join(p, ", ")
}
