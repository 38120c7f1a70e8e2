package modelstore

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// FileDescriptor describes a candidate upload before its content is read:
// the declared name, size and content type as reported by the caller.
type FileDescriptor struct {
	Name        string
	Size        int64
	ContentType string
}

// Extension returns the descriptor's lower-cased file extension,
// including the leading dot.
func (d FileDescriptor) Extension() string {
	return strings.ToLower(path.Ext(d.Name))
}

// ValidationResult is the verdict of Validator.Validate. Reason is set
// only when Valid is false and is suitable for direct display to a user.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Validator decides whether a candidate file is an acceptable 3D model
// upload. Validation is pure: it never touches the store and always
// returns the same verdict for the same descriptor.
type Validator struct {
	maxSize    int64
	extensions map[string]struct{}
	mimeTypes  map[string]struct{}
}

// NewValidator creates a Validator. Only the size, extension and MIME
// options are consulted; any other option is ignored.
func NewValidator(opts ...OptionFunc) *Validator {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	v := &Validator{
		maxSize:    options.MaxFileSize,
		extensions: make(map[string]struct{}, len(options.AllowedExtensions)),
		mimeTypes:  make(map[string]struct{}, len(options.AllowedMIMETypes)),
	}
	for _, ext := range options.AllowedExtensions {
		v.extensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, mt := range options.AllowedMIMETypes {
		v.mimeTypes[strings.ToLower(mt)] = struct{}{}
	}
	return v
}

// Validate checks the descriptor against the extension allow-list, the
// size ceiling and the MIME allow-list, in that order. An empty declared
// content type is tolerated because some browsers and operating systems
// fail to report one.
func (v *Validator) Validate(desc FileDescriptor) ValidationResult {
	ext := desc.Extension()
	if _, ok := v.extensions[ext]; !ok {
		return ValidationResult{
			Reason: fmt.Sprintf("invalid format %q, use one of: %s", ext, strings.Join(v.sortedExtensions(), ", ")),
		}
	}

	if desc.Size > v.maxSize {
		return ValidationResult{
			Reason: fmt.Sprintf("file exceeds the maximal size of %d MiB", v.maxSize/(1024*1024)),
		}
	}

	if desc.ContentType != "" {
		if _, ok := v.mimeTypes[strings.ToLower(desc.ContentType)]; !ok {
			return ValidationResult{
				Reason: fmt.Sprintf("unsupported content type %q", desc.ContentType),
			}
		}
	}

	return ValidationResult{Valid: true}
}

func (v *Validator) sortedExtensions() []string {
	exts := make([]string, 0, len(v.extensions))
	for ext := range v.extensions {
		exts = append(exts, ext)
	}
	// Stable order keeps the rejection message deterministic.
	sort.Strings(exts)
	return exts
}

// inferContentType backfills a missing declared content type from the
// file extension. Returns an empty string for unknown extensions.
func inferContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	case ".bin":
		return "application/gltf-buffer"
	default:
		return ""
	}
}

// formatOf reports the model format of a file name, "glb" or "gltf".
// Auxiliary .bin buffers belong to a gltf scene and report "gltf".
func formatOf(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".glb") {
		return "glb"
	}
	return "gltf"
}
