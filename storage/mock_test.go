package storage_test

import (
	"context"
	"testing"

	"dbauthd/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRepository_ReturnsCopies(t *testing.T) {
	repo := storage.NewMockRepository()

	user, err := repo.FindByID(context.Background(), storage.User1.ID)
	require.NoError(t, err)
	user.Username = "mutated"
	user.Attributes["name"] = "mutated"

	again, err := repo.FindByID(context.Background(), storage.User1.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", again.Username)
	assert.Equal(t, "Alice", again.Attributes["name"])
	assert.Equal(t, "Alice", storage.User1.Attributes["name"])
}

func TestMockRepository_IndependentInstances(t *testing.T) {
	a := storage.NewMockRepository()
	b := storage.NewMockRepository()

	require.NoError(t, a.UpdatePasswordHash(context.Background(), storage.User1.ID, "changed", "salt"))

	user, err := b.FindByID(context.Background(), storage.User1.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.FixtureHash, user.HashedPassword)
}

func TestMockRepository_CountsCalls(t *testing.T) {
	repo := storage.NewMockRepository()

	repo.FindByID(context.Background(), storage.User1.ID)
	repo.FindByUsername(context.Background(), storage.User1.Username)
	repo.FindByUsername(context.Background(), "nobody")

	assert.Equal(t, 1, repo.FindByIDCalls)
	assert.Equal(t, 2, repo.FindByUsernameCalls)
}
