// Package db provides the embedded database schema and the default catalog.
package db

import _ "embed"

// Schema contains the DDL for the catalog, cart, order and API key tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Products is the default catalog in the seed file format. The memory
// backend starts with it when no seed file is configured.
//
//go:embed seed/products.json
var Products []byte
