package testing

import (
	"context"

	"market-chat/internal/storage"

	"github.com/stretchr/testify/require"
)

// SeedUser stores a user with random username and email
func SeedUser(t require.TestingT, s *MemStore) storage.User {
	name := RandString()
	u, err := s.CreateUser(context.Background(), name, name+"@example.com", "x")
	require.NoError(t, err)
	return u
}

// SeedProduct stores a selling product owned by owner
func SeedProduct(t require.TestingT, s *MemStore, owner int64) storage.Product {
	p, err := s.CreateProduct(context.Background(), storage.Product{
		OwnerID: owner,
		Name:    RandString(),
		Price:   1000,
	})
	require.NoError(t, err)
	return p
}
