package storage

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no storage account is set
var ErrNotConfigured = errors.New("storage account name is required")

// StorageInterface defines the contract for the run report archive
type StorageInterface interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}
