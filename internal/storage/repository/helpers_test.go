//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/migrations"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// setupTestDatabase поднимает MongoDB в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := config.Mongo{
		URI:            uri,
		Database:       "billing_test",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    10,
		RetryAttempts:  3,
		RetryInterval:  time.Second,
	}

	migrationURL, err := cfg.MigrationURL()
	require.NoError(t, err)
	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(filepath.Join(root, "migrations"), migrationURL))

	s, err := New(ctx, cfg)
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close(ctx)
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return s, cleanup
}

// createTestUser создаёт пользователя с ролью user.
func createTestUser(t *testing.T, s *Storage, email string) string {
	t.Helper()
	id, err := s.CreateUser(context.Background(), models.User{
		Email:        email,
		Name:         "Test",
		PasswordHash: "hash",
		Role:         models.RoleUser,
	})
	require.NoError(t, err)
	return id
}
