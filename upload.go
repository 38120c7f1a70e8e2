package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
)

// ErrTransientFailure is the failure a FaultInjector raises to simulate
// a flaky transfer. Callers retry the whole upload; there is no partial
// retry of individual steps.
var ErrTransientFailure = errors.New("transient failure during upload")

// File is one candidate upload: the declared descriptor plus the content
// to read. Size is the declared size and is validated before Content is
// consumed; the actual content is validated again after reading.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

func (f File) descriptor() FileDescriptor {
	return FileDescriptor{Name: f.Name, Size: f.Size, ContentType: f.ContentType}
}

// UploadResult reports the outcome of an upload. Failures of any kind
// are folded into Success and ErrorReason; the coordinator never lets an
// internal error escape past it.
type UploadResult struct {
	Success     bool
	Handle      Handle   // Live handle for the main file, nil on failure
	AuxHandles  []Handle // Handles for auxiliary bundle files, in input order
	Format      string   // "gltf" or "glb", from the main file name
	ContentType string   // Declared or inferred MIME type of the main file
	ByteSize    int64    // Total bytes persisted across the whole upload
	ErrorReason string
}

func uploadFailure(reason string) *UploadResult {
	return &UploadResult{ErrorReason: reason}
}

// FaultInjector decides whether an in-flight transfer fails. The
// production default never fails; tests inject deterministic faults and
// ProbabilisticFaults reproduces a flaky network.
type FaultInjector interface {
	Fault() error
}

// FaultFunc adapts a function to the FaultInjector interface.
type FaultFunc func() error

func (f FaultFunc) Fault() error { return f() }

// NeverFault returns the default injector: transfers always succeed.
func NeverFault() FaultInjector {
	return FaultFunc(func() error { return nil })
}

// ProbabilisticFaults returns an injector that fails a fraction p of
// transfers with ErrTransientFailure.
func ProbabilisticFaults(p float64) FaultInjector {
	return FaultFunc(func() error {
		if rand.Float64() < p {
			return ErrTransientFailure
		}
		return nil
	})
}

// Uploader coordinates the upload pipeline: validate, read, encode,
// persist, seed the handle cache. Steps within one call run in strict
// sequence; independent calls interleave freely and are safe as long as
// they target distinct (owner, name) pairs. Concurrent uploads to the
// same pair race and the last writer wins at the store layer.
type Uploader struct {
	validator *Validator
	store     *Store
	cache     *HandleCache
	fault     FaultInjector
	delay     time.Duration
	clock     clock.Clock
	log       zerolog.Logger
	metrics   *metrics

	inFlight atomic.Int64
}

// InFlight returns the number of uploads currently running. It returns
// to zero after every exit path, failures included.
func (u *Uploader) InFlight() int64 {
	return u.inFlight.Load()
}

// Upload runs the pipeline for a single file. On success the returned
// result carries a live handle seeded straight from the uploaded bytes,
// so no store read-back or decode is paid.
//
// Validation failures leave the store and cache untouched. A cancelled
// context aborts before anything is persisted.
func (u *Uploader) Upload(ctx context.Context, file File, ownerID int64) *UploadResult {
	u.inFlight.Add(1)
	defer u.inFlight.Add(-1)

	if res := u.validator.Validate(file.descriptor()); !res.Valid {
		u.metrics.uploadFinished("rejected")
		return uploadFailure(res.Reason)
	}

	data, err := u.readContent(file)
	if err != nil {
		u.metrics.uploadFinished("failed")
		return uploadFailure(err.Error())
	}

	if err := u.transfer(ctx, 1); err != nil {
		u.metrics.uploadFinished("failed")
		return uploadFailure(err.Error())
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = inferContentType(file.Name)
	}

	if _, err := u.store.Write(ctx, ownerID, file.Name, data, contentType); err != nil {
		u.log.Error().Int64("owner", ownerID).Str("name", file.Name).Err(err).
			Msg("persisting upload failed")
		u.metrics.uploadFinished("failed")
		return uploadFailure(fmt.Sprintf("storing %q failed: %v", file.Name, err))
	}

	handle, err := u.cache.Seed(ownerID, file.Name, data, contentType)
	if err != nil {
		u.metrics.uploadFinished("failed")
		return uploadFailure(fmt.Sprintf("materializing handle for %q failed: %v", file.Name, err))
	}

	u.metrics.uploadFinished("success")
	return &UploadResult{
		Success:     true,
		Handle:      handle,
		Format:      formatOf(file.Name),
		ContentType: contentType,
		ByteSize:    int64(len(data)),
	}
}

// UploadBundle runs the pipeline for a main model file plus its
// auxiliary buffer files. Every file is validated before any byte is
// persisted; one rejected file fails the whole bundle and nothing is
// written (all-or-nothing).
func (u *Uploader) UploadBundle(ctx context.Context, main File, aux []File, ownerID int64) *UploadResult {
	u.inFlight.Add(1)
	defer u.inFlight.Add(-1)

	if res := u.validator.Validate(main.descriptor()); !res.Valid {
		u.metrics.uploadFinished("rejected")
		return uploadFailure(fmt.Sprintf("main file %q: %s", main.Name, res.Reason))
	}
	for _, f := range aux {
		if res := u.validator.Validate(f.descriptor()); !res.Valid {
			u.metrics.uploadFinished("rejected")
			return uploadFailure(fmt.Sprintf("auxiliary file %q: %s", f.Name, res.Reason))
		}
	}

	files := append([]File{main}, aux...)
	contents := make([][]byte, len(files))
	for i, f := range files {
		data, err := u.readContent(f)
		if err != nil {
			u.metrics.uploadFinished("failed")
			return uploadFailure(err.Error())
		}
		contents[i] = data
	}

	if err := u.transfer(ctx, len(files)); err != nil {
		u.metrics.uploadFinished("failed")
		return uploadFailure(err.Error())
	}

	// Persist in order, rolling written records back on failure so a
	// half-persisted bundle is never left behind.
	written := make([]string, 0, len(files))
	var total int64
	for i, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = inferContentType(f.Name)
		}
		if _, err := u.store.Write(ctx, ownerID, f.Name, contents[i], contentType); err != nil {
			for _, name := range written {
				if rerr := u.store.Remove(ctx, ownerID, name); rerr != nil {
					u.log.Error().Int64("owner", ownerID).Str("name", name).Err(rerr).
						Msg("rolling back bundle member failed")
				}
			}
			u.metrics.uploadFinished("failed")
			return uploadFailure(fmt.Sprintf("storing %q failed: %v", f.Name, err))
		}
		written = append(written, f.Name)
		total += int64(len(contents[i]))
	}

	mainType := main.ContentType
	if mainType == "" {
		mainType = inferContentType(main.Name)
	}

	mainHandle, err := u.cache.Seed(ownerID, main.Name, contents[0], mainType)
	if err != nil {
		u.metrics.uploadFinished("failed")
		return uploadFailure(fmt.Sprintf("materializing handle for %q failed: %v", main.Name, err))
	}

	auxHandles := make([]Handle, 0, len(aux))
	for i, f := range aux {
		contentType := f.ContentType
		if contentType == "" {
			contentType = inferContentType(f.Name)
		}
		h, err := u.cache.Seed(ownerID, f.Name, contents[i+1], contentType)
		if err != nil {
			u.metrics.uploadFinished("failed")
			return uploadFailure(fmt.Sprintf("materializing handle for %q failed: %v", f.Name, err))
		}
		auxHandles = append(auxHandles, h)
	}

	u.metrics.uploadFinished("success")
	return &UploadResult{
		Success:     true,
		Handle:      mainHandle,
		AuxHandles:  auxHandles,
		Format:      formatOf(main.Name),
		ContentType: mainType,
		ByteSize:    total,
	}
}

// readContent drains the file and re-validates the actual byte count,
// which may differ from the declared size.
func (u *Uploader) readContent(file File) ([]byte, error) {
	if file.Content == nil {
		return nil, fmt.Errorf("reading %q: no content", file.Name)
	}

	data, err := io.ReadAll(file.Content)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %v", file.Name, err)
	}

	actual := FileDescriptor{Name: file.Name, Size: int64(len(data)), ContentType: file.ContentType}
	if res := u.validator.Validate(actual); !res.Valid {
		return nil, fmt.Errorf("file %q: %s", file.Name, res.Reason)
	}
	return data, nil
}

// transfer models the network leg of an upload: an optional configurable
// latency followed by the fault injector's verdict. It observes ctx so a
// caller can abandon an upload before anything is persisted.
func (u *Uploader) transfer(ctx context.Context, files int) error {
	if u.delay > 0 {
		select {
		case <-u.clock.After(u.delay):
		case <-ctx.Done():
			return fmt.Errorf("upload cancelled: %v", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upload cancelled: %v", err)
	}

	if err := u.fault.Fault(); err != nil {
		u.log.Warn().Int("files", files).Err(err).Msg("simulated transfer fault")
		return fmt.Errorf("upload failed: %v", err)
	}
	return nil
}

// SplitBundle partitions a file selection into main model files (.gltf
// and .glb) and auxiliary buffer files (.bin), preserving input order.
func SplitBundle(files []File) (mains, aux []File) {
	for _, f := range files {
		switch f.descriptor().Extension() {
		case ".gltf", ".glb":
			mains = append(mains, f)
		case ".bin":
			aux = append(aux, f)
		}
	}
	return mains, aux
}
