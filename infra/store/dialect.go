package store

import (
	"fmt"
	"strings"
)

// dialect captures the few statements that differ between drivers.
type dialect interface {
	AutoIncrementPK() string
	Rebind(query string) string
}

type sqliteDialect struct{}

func (sqliteDialect) AutoIncrementPK() string    { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) Rebind(query string) string { return query }

type postgresDialect struct{}

func (postgresDialect) AutoIncrementPK() string    { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) Rebind(query string) string { return Rebind(query) }

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
