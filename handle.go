package modelstore

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Handle is a live, renderer-consumable reference to decoded model data.
// Handles are ephemeral: they are owned by the handle cache, never
// persisted, and become invalid the moment the cache revokes them.
//
// Callers hold handles as borrowed references. They must never release a
// handle themselves; deletion goes through Manager.Delete, which revokes
// the cached handle before touching the persisted record.
type Handle interface {
	// URI is a stable identifier for this materialization, unique per
	// handle instance. Two materializations of the same asset have
	// different URIs.
	URI() string

	// ContentType is the MIME type the handle was materialized with.
	ContentType() string

	// Len returns the payload length in bytes.
	Len() int

	// Bytes returns the decoded payload, or an error once the handle has
	// been revoked.
	Bytes() ([]byte, error)
}

// HandleFactory materializes handles from decoded payloads and releases
// their underlying resource. The handle cache is the only caller; it
// pairs every Materialize with exactly one Release.
type HandleFactory interface {
	Materialize(data []byte, contentType string) (Handle, error)
	Release(Handle)
}

// memoryHandle is the default in-process handle: it simply pins the
// decoded payload in memory under a unique mem:// URI.
type memoryHandle struct {
	uri         string
	contentType string
	size        int

	mu       sync.RWMutex
	data     []byte
	released bool
}

func (h *memoryHandle) URI() string         { return h.uri }
func (h *memoryHandle) ContentType() string { return h.contentType }
func (h *memoryHandle) Len() int            { return h.size }

func (h *memoryHandle) Bytes() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, fmt.Errorf("handle %s: %w", h.uri, ErrHandleRevoked)
	}
	return h.data, nil
}

// MemoryHandleFactory produces in-memory handles. Release drops the
// pinned payload so a revoked handle can never serve stale bytes, and a
// live-handle counter backs the invariant that no resource outlives its
// cache entry.
type MemoryHandleFactory struct {
	live atomic.Int64
}

// NewMemoryHandleFactory creates the default handle factory.
func NewMemoryHandleFactory() *MemoryHandleFactory {
	return &MemoryHandleFactory{}
}

func (f *MemoryHandleFactory) Materialize(data []byte, contentType string) (Handle, error) {
	// Copy so later mutation of the source buffer cannot leak into a
	// handle a renderer is already consuming.
	pinned := make([]byte, len(data))
	copy(pinned, data)

	f.live.Add(1)
	return &memoryHandle{
		uri:         "mem://" + newID(),
		contentType: contentType,
		size:        len(pinned),
		data:        pinned,
	}, nil
}

func (f *MemoryHandleFactory) Release(h Handle) {
	mh, ok := h.(*memoryHandle)
	if !ok || mh == nil {
		return
	}

	mh.mu.Lock()
	defer mh.mu.Unlock()
	if mh.released {
		return
	}
	mh.released = true
	mh.data = nil
	f.live.Add(-1)
}

// Live returns the number of handles materialized and not yet released.
func (f *MemoryHandleFactory) Live() int64 {
	return f.live.Load()
}
