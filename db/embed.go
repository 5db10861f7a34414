// Package db provides the embedded database schema and seed data.
package db

import _ "embed"

// Schema contains the DDL statements for the coupon tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedCoupons contains a starter coupon catalogue as JSON, loaded by the
// seed-db command.
//
//go:embed seed/coupons.json
var SeedCoupons []byte
