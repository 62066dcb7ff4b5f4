package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending schema migration.
func Migrate(ctx context.Context, p *pgxpool.Pool, logger *zap.Logger) error {
	if p == nil {
		return fmt.Errorf("pool is required")
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger.Named("migrate").Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	db := stdlib.OpenDBFromPool(p)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close migration db handle", zap.Error(err))
		}
	}()
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type gooseLogger struct {
	logger *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...any) { l.logger.Errorf(format, v...) }
func (l gooseLogger) Printf(format string, v ...any) { l.logger.Infof(format, v...) }
