package tracking

import (
	_ "embed"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultSchema is the Postgres schema used when none is configured.
const DefaultSchema = "rsvp"

//go:embed schema.sql
var schemaTemplate string

// SchemaSQL returns the DDL for the tracking table inside schema.
// The statements are idempotent.
func SchemaSQL(schema string) string {
	return strings.ReplaceAll(schemaTemplate, "{{rsvp_tokens}}", pgIdent(schema, "rsvp_tokens"))
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
