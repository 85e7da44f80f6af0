// Package migrations предоставляет обертку над goose для схемы очереди
// корректирующих сообщений в PostgreSQL. Миграции встроены в бинарник.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

const dir = "sql"

// goose хранит FS и диалект в глобальном состоянии
var gooseMu sync.Mutex

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	Status    string // "pending", "applied"
}

func withGoose(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedded)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return fn()
}

// Up применяет все pending миграции
func Up(ctx context.Context, db *sql.DB) error {
	return withGoose(func() error {
		if err := goose.UpContext(ctx, db, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// Down откатывает steps последних миграций
func Down(ctx context.Context, db *sql.DB, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return withGoose(func() error {
		for i := 0; i < steps; i++ {
			if err := goose.DownContext(ctx, db, dir); err != nil {
				return fmt.Errorf("failed to rollback migration: %w", err)
			}
		}
		return nil
	})
}

// Version возвращает текущую версию схемы
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	var version int64
	err := withGoose(func() error {
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to get db version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// List возвращает встроенные миграции по возрастанию версии
func List() ([]*goose.Migration, error) {
	var migrations goose.Migrations
	err := withGoose(func() error {
		var err error
		migrations, err = goose.CollectMigrations(dir, 0, goose.MaxVersion)
		if err != nil {
			return fmt.Errorf("failed to collect migrations: %w", err)
		}
		return nil
	})
	return migrations, err
}

// Status возвращает статус каждой встроенной миграции
func Status(ctx context.Context, db *sql.DB) ([]MigrationStatus, error) {
	all, err := List()
	if err != nil {
		return nil, err
	}
	current, err := Version(ctx, db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(all))
	for _, m := range all {
		st := MigrationStatus{Version: m.Version, Name: m.Source, Status: "pending"}
		if m.Version <= current {
			st.Status = "applied"
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
