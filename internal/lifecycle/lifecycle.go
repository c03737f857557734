// Package lifecycle tracks generated artifacts across their two homes: the
// durable local copy and the TTL-bound remote mirror. The index in the store
// is authoritative; the remote side is re-checked and re-uploaded on demand.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/internal/remote"
	"github.com/nanobanana/imagemcp/internal/storage"
	"github.com/nanobanana/imagemcp/internal/store"
	"github.com/nanobanana/imagemcp/pkg/models"
)

// How long a successful remote metadata check stays trusted before the next
// EnsureAvailable re-verifies against the Files API.
const metadataCacheTTL = 5 * time.Minute

type Tracker struct {
	store  *store.Store
	remote remote.Store
	ttl    time.Duration
	log    zerolog.Logger

	mu      sync.Mutex
	locks   map[int64]*sync.Mutex
	checked map[int64]time.Time
}

func New(st *store.Store, rem remote.Store, cfg *config.Config, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:   st,
		remote:  rem,
		ttl:     cfg.Remote.TTL,
		log:     log.With().Str("component", "lifecycle").Logger(),
		locks:   make(map[int64]*sync.Mutex),
		checked: make(map[int64]time.Time),
	}
}

// Track records a freshly saved artifact in the index. No remote upload
// happens here; mirroring is deferred until the artifact is referenced.
func (t *Tracker) Track(ctx context.Context, saved *storage.SavedImage, metadata map[string]any, parentRemoteID string) (*models.ImageRecord, error) {
	rec := &models.ImageRecord{
		Path:           saved.Path,
		ThumbPath:      saved.ThumbPath,
		MimeType:       saved.MimeType,
		Width:          saved.Width,
		Height:         saved.Height,
		SizeBytes:      saved.SizeBytes,
		ParentRemoteID: parentRemoteID,
		Metadata:       metadata,
	}

	id, err := t.store.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to record artifact: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// UploadAndTrack mirrors a local file into the remote store and records the
// assigned identity. An existing record with a live mirror is returned as is.
func (t *Tracker) UploadAndTrack(ctx context.Context, localPath, displayName string) (*models.ImageRecord, error) {
	rec, err := t.store.GetByPath(ctx, localPath)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.RemoteLive(time.Now()) {
		return rec, nil
	}

	if rec == nil {
		info, err := os.Stat(localPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", models.ErrArtifactUnavailable, localPath)
		}
		rec = &models.ImageRecord{
			Path:      localPath,
			MimeType:  storage.MimeTypeForPath(localPath),
			SizeBytes: info.Size(),
		}
	}

	remoteFile, err := t.remote.Upload(ctx, localPath, displayName)
	if err != nil {
		return nil, fmt.Errorf("%w: upload failed: %v", models.ErrArtifactUnavailable, err)
	}

	rec.RemoteID = remoteFile.ID
	rec.RemoteURI = remoteFile.URI
	expires := remoteFile.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(t.ttl)
	}
	rec.ExpiresAt = &expires

	id, err := t.store.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	rec.ID = id
	t.markChecked(id)

	t.log.Info().Str("path", localPath).Str("remote_id", rec.RemoteID).
		Time("expires_at", expires).Msg("mirrored file to remote store")
	return rec, nil
}

// EnsureAvailable guarantees a usable remote reference for an artifact named
// by local path or remote id. It re-verifies the mirror against the remote
// store, re-uploads from the local copy if the mirror expired, and fails with
// ErrArtifactUnavailable only when both sides are gone.
func (t *Tracker) EnsureAvailable(ctx context.Context, ref string) (*models.RemoteFile, error) {
	rec, err := t.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Unknown to the index; a readable local file can still be adopted.
		if _, statErr := os.Stat(ref); statErr != nil {
			return nil, fmt.Errorf("%w: %s", models.ErrArtifactUnavailable, ref)
		}
		rec, err = t.UploadAndTrack(ctx, ref, "")
		if err != nil {
			return nil, err
		}
		return remoteFileOf(rec), nil
	}

	unlock := t.lock(rec.ID)
	defer unlock()

	// Another caller may have refreshed the mirror while we waited.
	rec, err = t.store.GetByID(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrArtifactUnavailable, ref)
	}

	now := time.Now()
	if rec.RemoteLive(now) && t.recentlyChecked(rec.ID, now) {
		return remoteFileOf(rec), nil
	}

	if rec.RemoteID != "" {
		remoteFile, err := t.remote.GetMetadata(ctx, rec.RemoteID)
		if err == nil && remoteFile.State == models.RemoteStateActive && remoteFile.ExpiresAt.After(now) {
			if _, err := t.store.RefreshRemoteInfo(ctx, rec.ID, remoteFile.ID, remoteFile.URI, remoteFile.ExpiresAt); err != nil {
				return nil, err
			}
			t.markChecked(rec.ID)
			return remoteFile, nil
		}
		t.log.Debug().Str("remote_id", rec.RemoteID).Err(err).
			Msg("remote mirror no longer usable, falling back to local copy")
	}

	if _, err := os.Stat(rec.Path); err != nil {
		if rec.RemoteID != "" {
			if _, clearErr := t.store.ClearRemoteInfo(ctx, rec.ID); clearErr != nil {
				return nil, clearErr
			}
		}
		return nil, fmt.Errorf("%w: local copy of %s is gone", models.ErrArtifactUnavailable, ref)
	}

	remoteFile, err := t.remote.Upload(ctx, rec.Path, "")
	if err != nil {
		return nil, fmt.Errorf("%w: re-upload failed: %v", models.ErrArtifactUnavailable, err)
	}
	if _, err := t.store.RefreshRemoteInfo(ctx, rec.ID, remoteFile.ID, remoteFile.URI, remoteFile.ExpiresAt); err != nil {
		return nil, err
	}
	t.markChecked(rec.ID)

	t.log.Info().Int64("id", rec.ID).Str("remote_id", remoteFile.ID).
		Msg("re-uploaded expired mirror")
	return remoteFile, nil
}

func (t *Tracker) resolve(ctx context.Context, ref string) (*models.ImageRecord, error) {
	if rec, err := t.store.GetByPath(ctx, ref); err != nil || rec != nil {
		return rec, err
	}
	return t.store.GetByRemoteID(ctx, ref)
}

func (t *Tracker) lock(id int64) func() {
	t.mu.Lock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (t *Tracker) recentlyChecked(id int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.checked[id]
	return ok && now.Sub(at) < metadataCacheTTL
}

func (t *Tracker) markChecked(id int64) {
	t.mu.Lock()
	t.checked[id] = time.Now()
	t.mu.Unlock()
}

func remoteFileOf(rec *models.ImageRecord) *models.RemoteFile {
	var expires time.Time
	if rec.ExpiresAt != nil {
		expires = *rec.ExpiresAt
	}
	return &models.RemoteFile{
		ID:        rec.RemoteID,
		URI:       rec.RemoteURI,
		State:     models.RemoteStateActive,
		ExpiresAt: expires,
	}
}
