// Package migrate applies the embedded backend schema.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/billix-app/billix/migrations"
)

// Up applies pending migrations and returns the resulting schema version.
func Up(ctx context.Context, dsn string) (int64, error) {
	db, err := open(dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}

// Version reports the applied schema version without changing anything.
func Version(ctx context.Context, dsn string) (int64, error) {
	db, err := open(dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return goose.GetDBVersionContext(ctx, db)
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
