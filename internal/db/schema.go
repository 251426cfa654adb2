package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for the clinic tables. Every statement is idempotent.
func Schema() string {
	return schemaSQL
}

// ApplySchema creates missing tables, constraints and indexes.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	// No arguments, so pgx sends it over the simple protocol and the
	// multi-statement script runs as one batch.
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
