// Package schema embeds the table definitions the two dispatcher
// variants run against, so setup code and tests share one source of
// truth instead of copy-pasted DDL.
package schema

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"
)

//go:embed schema.sql
var ddlFile string

// Statements returns the individual CREATE TABLE / INDEX statements
// from schema.sql, split on semicolons and trimmed.
func Statements() []string {
	parts := strings.Split(ddlFile, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// Apply runs every statement in order against db, stopping at the
// first failure. Used by the integration tests to set up a scratch
// database.
func Apply(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
