// Package modelstore stores user-uploaded 3D model files (glTF, GLB and
// their auxiliary .bin buffers) in a text-only key-value medium and hands
// them back to renderers as ephemeral in-memory handles.
//
// # Design
//
// Binary payloads are base64-encoded because the backing medium only holds
// strings. Each asset occupies four sibling keys (data, content type,
// original name, creation timestamp) under a deterministic key derived from
// the owning product and the file name.
//
// Why four sibling keys: the medium offers no structured records, so the
// store writes the metadata keys first and the data key last. A reader
// treats a record with any key missing as absent, which keeps half-written
// records invisible.
//
// Why a handle cache: renderers consume live object references, not encoded
// text. Decoding and materializing a handle on every lookup would leak
// resources and duplicate work, so the cache guarantees at most one live
// handle per storage key and releases the underlying resource the moment an
// entry is revoked or evicted.
//
// # Usage
//
//	store, err := modelstore.New(modelstore.NewMemoryMedium())
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	res := store.Upload(ctx, modelstore.File{
//		Name:        "cup.glb",
//		ContentType: "model/gltf-binary",
//		Size:        int64(len(payload)),
//		Content:     bytes.NewReader(payload),
//	}, productID)
//	if !res.Success {
//		return errors.New(res.ErrorReason)
//	}
//
//	h, err := store.ResolveHandle(ctx, productID, "cup.glb")
//
// # Concurrency
//
// All methods are safe for concurrent use. Concurrent uploads to distinct
// (owner, name) pairs are independent; concurrent uploads to the same pair
// race and the last writer wins at the medium layer. The handle cache
// deduplicates concurrent misses for one key so only a single handle is
// ever materialized.
//
// # Error Handling
//
// Upload failures never escape as errors; they are folded into the returned
// UploadResult with a human-readable reason. Lookup paths return sentinel
// errors that can be tested with errors.Is, and inconsistent persisted
// records degrade to ErrNotFound with a diagnostic log line instead of
// failing hard.
package modelstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound        = errors.New("asset not found")
	ErrEmptyName       = errors.New("asset name cannot be empty")
	ErrInvalidName     = errors.New("asset name contains invalid characters")
	ErrNameTooLong     = errors.New("asset name exceeds maximal length")
	ErrHandleRevoked   = errors.New("handle has been revoked")
	ErrManagerClosed   = errors.New("model store is closed")
	ErrMediumCorrupted = errors.New("persisted record is incomplete")
)

// Manager is the front door of the model store. It wires the validator,
// codec, persistent store, handle cache and upload coordinator together and
// owns their shared lifecycle.
//
// A Manager must be created with New and released with Close, which revokes
// every live handle so no ephemeral resource outlives the store.
type Manager struct {
	opts      *Options
	validator *Validator
	store     *Store
	cache     *HandleCache
	uploader  *Uploader
	log       zerolog.Logger
}

// New creates a Manager on top of the given key-value medium.
func New(medium Medium, opts ...OptionFunc) (*Manager, error) {
	if medium == nil {
		return nil, errors.New("medium must not be nil")
	}

	// Copy default options to avoid mutating the global default.
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	codec, err := newCodec(options.Compression)
	if err != nil {
		return nil, fmt.Errorf("initializing codec: %w", err)
	}

	met := newMetrics(options.Registerer)

	validator := NewValidator(
		WithMaxFileSize(options.MaxFileSize),
		WithAllowedExtensions(options.AllowedExtensions...),
		WithAllowedMIMETypes(options.AllowedMIMETypes...),
	)

	store := &Store{
		medium: medium,
		codec:  codec,
		prefix: options.KeyPrefix,
		clock:  options.Clock,
		log:    options.Logger,
	}

	cache, err := newHandleCache(store, options.Factory, options.CacheCapacity, options.Logger, met)
	if err != nil {
		return nil, fmt.Errorf("initializing handle cache: %w", err)
	}

	uploader := &Uploader{
		validator: validator,
		store:     store,
		cache:     cache,
		fault:     options.Fault,
		delay:     options.UploadDelay,
		clock:     options.Clock,
		log:       options.Logger,
		metrics:   met,
	}

	return &Manager{
		opts:      options,
		validator: validator,
		store:     store,
		cache:     cache,
		uploader:  uploader,
		log:       options.Logger,
	}, nil
}

// Validate checks a candidate file descriptor without touching the store.
func (m *Manager) Validate(desc FileDescriptor) ValidationResult {
	return m.validator.Validate(desc)
}

// Upload validates, encodes and persists a single model file, then seeds
// the handle cache and returns a live handle in the result. All failures
// are reported through the result, never as an error.
func (m *Manager) Upload(ctx context.Context, file File, ownerID int64) *UploadResult {
	return m.uploader.Upload(ctx, file, ownerID)
}

// UploadBundle persists a main model file together with its auxiliary
// buffer files. Every file is validated before anything is written; if any
// file is rejected the whole bundle fails and the store stays untouched.
func (m *Manager) UploadBundle(ctx context.Context, main File, aux []File, ownerID int64) *UploadResult {
	return m.uploader.UploadBundle(ctx, main, aux, ownerID)
}

// Uploading reports whether at least one upload is currently in flight.
func (m *Manager) Uploading() bool {
	return m.uploader.InFlight() > 0
}

// ResolveHandle returns the live handle for a stored asset, materializing
// it on first access. Repeated calls for the same asset return the
// identical handle until it is revoked.
//
// Returns ErrNotFound when no complete record exists for the asset.
func (m *Manager) ResolveHandle(ctx context.Context, ownerID int64, name string) (Handle, error) {
	return m.cache.GetOrCreate(ctx, ownerID, name)
}

// Delete revokes the asset's cached handle and then removes its persisted
// record. The handle is revoked first so a caller can never be handed a
// handle whose backing data is already gone. Reports whether a complete
// record existed. Idempotent.
func (m *Manager) Delete(ctx context.Context, ownerID int64, name string) (bool, error) {
	existed, err := m.store.Exists(ownerID, name)
	if err != nil {
		return false, err
	}

	m.cache.Revoke(m.store.Key(ownerID, name))

	if err := m.store.Remove(ctx, ownerID, name); err != nil {
		return false, fmt.Errorf("removing asset %q: %w", name, err)
	}
	return existed, nil
}

// DeleteAllForOwner revokes every cached handle belonging to the owner and
// removes all of the owner's persisted records, including incomplete ones.
func (m *Manager) DeleteAllForOwner(ctx context.Context, ownerID int64) error {
	m.cache.RevokeAllForOwner(ownerID)

	names, err := m.store.namesForOwner(ownerID)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.store.Remove(ctx, ownerID, name); err != nil {
			return fmt.Errorf("removing asset %q: %w", name, err)
		}
	}
	return nil
}

// ListAssetsForOwner enumerates the owner's complete persisted assets.
func (m *Manager) ListAssetsForOwner(ownerID int64) ([]AssetInfo, error) {
	return m.store.ListForOwner(ownerID)
}

// Close revokes every live handle. The persisted records are left intact.
func (m *Manager) Close() error {
	m.cache.RevokeAll()
	return nil
}
