// Package database owns the SQLite file behind Dwellio Core: the
// device registry, the audit trail, and the user access tables all
// live in it. It opens the connection with WAL mode and foreign keys
// enforced, pins the pool to a single connection (SQLite has one
// writer; one connection means the repositories never contend for
// locks), and applies embedded schema migrations at startup.
//
// Migrations are paired YYYYMMDD_HHMMSS_name.up.sql / .down.sql files
// registered by the migrations package and tracked in a
// schema_migrations table. Each runs in its own transaction, so a
// failed migration rolls back alone and Migrate can be re-run.
//
// The audit trail is the reason this file is treated carefully:
// permissions are owner-only and migrations never drop or rewrite
// audit rows.
package database
