// Package db embeds the relational schema migrations.
package db

import "embed"

// Migrations holds one directory of golang-migrate files per SQL dialect.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var Migrations embed.FS

const (
	PostgresMigrationsDir = "migrations/postgres"
	SQLiteMigrationsDir   = "migrations/sqlite"
)
