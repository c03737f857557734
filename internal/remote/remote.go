// Package remote defines the TTL-bound remote file store boundary (a Files
// API the backend can reference by id instead of receiving bytes inline).
package remote

import (
	"context"

	"github.com/nanobanana/imagemcp/pkg/models"
)

type Store interface {
	// Upload mirrors a local file into the remote store and returns its
	// assigned identity. Remote entries expire after the store's TTL.
	Upload(ctx context.Context, localPath, displayName string) (*models.RemoteFile, error)

	// GetMetadata fetches the current state of a remote file. An error or a
	// non-active state means the file can no longer be referenced.
	GetMetadata(ctx context.Context, id string) (*models.RemoteFile, error)
}
