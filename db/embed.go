// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the DDL for the discounts table and its indexes.
//
//go:embed migrations/001_schema.sql
var Schema string
