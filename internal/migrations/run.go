// Package migrations применяет миграции схемы MongoDB (индексы коллекций).
package migrations

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// Драйвер MongoDB для golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/mongodb"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Run применяет все миграции из каталога path к базе databaseURL.
// URL должен содержать имя базы в пути: mongodb://host:27017/billing.
func Run(path, databaseURL string) error {
	const op = "migrations.Run"

	m, err := migrate.New("file://"+path, databaseURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
