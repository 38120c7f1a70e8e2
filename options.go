package modelstore

import (
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const defaultMaxFileSize = 20 * 1024 * 1024 // 20 MiB

// defaultKeyPrefix is the namespace every storage key lives under. It is
// part of the persisted layout; changing it orphans existing records.
const defaultKeyPrefix = "product_3d_model_"

// Options configures a Manager.
type Options struct {
	MaxFileSize       int64         // Upload size ceiling in bytes
	AllowedExtensions []string      // Acceptable file extensions, with leading dot
	AllowedMIMETypes  []string      // Acceptable declared content types
	KeyPrefix         string        // Namespace prefix of every storage key
	CacheCapacity     int           // Maximal number of live handles
	Compression       bool          // zstd-compress payloads before encoding
	Factory           HandleFactory // Materializes and releases handles
	Fault             FaultInjector // Transfer fault decision, default never
	UploadDelay       time.Duration // Simulated network latency per upload
	Clock             clock.Clock   // Time source for timestamps and latency
	Logger            zerolog.Logger
	Registerer        prometheus.Registerer // nil disables metrics
}

// OptionFunc is a functional option for configuring a Manager or a
// standalone Validator.
type OptionFunc func(opts *Options)

// WithMaxFileSize sets the upload size ceiling in bytes. Default is 20 MiB.
func WithMaxFileSize(size int64) OptionFunc {
	return func(opts *Options) {
		if size > 0 {
			opts.MaxFileSize = size
		}
	}
}

// WithAllowedExtensions replaces the extension allow-list. Extensions are
// matched case-insensitively and include the leading dot.
// Default: .gltf, .glb, .bin.
func WithAllowedExtensions(exts ...string) OptionFunc {
	return func(opts *Options) {
		if len(exts) > 0 {
			opts.AllowedExtensions = exts
		}
	}
}

// WithAllowedMIMETypes replaces the content-type allow-list applied to
// declared types. An empty declared type always passes.
func WithAllowedMIMETypes(types ...string) OptionFunc {
	return func(opts *Options) {
		if len(types) > 0 {
			opts.AllowedMIMETypes = types
		}
	}
}

// WithKeyPrefix sets the storage key namespace prefix.
func WithKeyPrefix(prefix string) OptionFunc {
	return func(opts *Options) {
		if prefix != "" {
			opts.KeyPrefix = prefix
		}
	}
}

// WithCacheCapacity bounds the number of simultaneously live handles.
// The least recently used handle is released when the bound is hit.
// Default is 128.
func WithCacheCapacity(n int) OptionFunc {
	return func(opts *Options) {
		if n > 0 {
			opts.CacheCapacity = n
		}
	}
}

// WithCompression enables zstd compression of payloads before base64
// encoding. Records written with compression enabled can only be read
// with compression enabled, and vice versa.
func WithCompression() OptionFunc {
	return func(opts *Options) {
		opts.Compression = true
	}
}

// WithHandleFactory replaces the default in-memory handle factory.
func WithHandleFactory(f HandleFactory) OptionFunc {
	return func(opts *Options) {
		if f != nil {
			opts.Factory = f
		}
	}
}

// WithFaultInjector replaces the transfer fault decision. The default
// never fails; ProbabilisticFaults(0.1) reproduces a flaky network.
func WithFaultInjector(f FaultInjector) OptionFunc {
	return func(opts *Options) {
		if f != nil {
			opts.Fault = f
		}
	}
}

// WithUploadDelay adds a simulated network latency to every upload.
// Default is no delay.
func WithUploadDelay(d time.Duration) OptionFunc {
	return func(opts *Options) {
		if d >= 0 {
			opts.UploadDelay = d
		}
	}
}

// WithClock replaces the time source used for creation timestamps and
// the simulated latency. Tests use this for deterministic time.
func WithClock(c clock.Clock) OptionFunc {
	return func(opts *Options) {
		if c != nil {
			opts.Clock = c
		}
	}
}

// WithLogger sets the diagnostic logger. Default discards everything.
func WithLogger(log zerolog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.Logger = log
	}
}

// WithMetrics registers upload, cache and handle metrics with the given
// registerer. Default is no metrics.
func WithMetrics(reg prometheus.Registerer) OptionFunc {
	return func(opts *Options) {
		opts.Registerer = reg
	}
}

// defaultOptions returns a fresh copy of the defaults so option
// application never mutates shared state.
func defaultOptions() *Options {
	return &Options{
		MaxFileSize:       defaultMaxFileSize,
		AllowedExtensions: []string{".gltf", ".glb", ".bin"},
		AllowedMIMETypes: []string{
			"model/gltf+json",
			"model/gltf-binary",
			"application/octet-stream",
			"application/gltf-buffer", // auxiliary .bin buffers
		},
		KeyPrefix:     defaultKeyPrefix,
		CacheCapacity: 128,
		Factory:       NewMemoryHandleFactory(),
		Fault:         NeverFault(),
		Clock:         clock.WallClock,
		Logger:        zerolog.Nop(),
	}
}
