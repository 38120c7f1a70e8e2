package modelstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		desc       FileDescriptor
		wantValid  bool
		wantReason string
	}{
		{
			name:      "glb with binary mime",
			desc:      FileDescriptor{Name: "cup.glb", Size: 500_000, ContentType: "model/gltf-binary"},
			wantValid: true,
		},
		{
			name:      "gltf with json mime",
			desc:      FileDescriptor{Name: "scene.gltf", Size: 1024, ContentType: "model/gltf+json"},
			wantValid: true,
		},
		{
			name:      "bin buffer",
			desc:      FileDescriptor{Name: "scene.bin", Size: 2048, ContentType: "application/gltf-buffer"},
			wantValid: true,
		},
		{
			name:      "empty content type tolerated",
			desc:      FileDescriptor{Name: "cup.glb", Size: 10},
			wantValid: true,
		},
		{
			name:      "upper case extension",
			desc:      FileDescriptor{Name: "CUP.GLB", Size: 10},
			wantValid: true,
		},
		{
			name:      "size exactly at ceiling",
			desc:      FileDescriptor{Name: "big.glb", Size: defaultMaxFileSize},
			wantValid: true,
		},
		{
			name:       "executable rejected",
			desc:       FileDescriptor{Name: "malware.exe", Size: 123},
			wantReason: "invalid format",
		},
		{
			name:       "no extension rejected",
			desc:       FileDescriptor{Name: "model", Size: 123},
			wantReason: "invalid format",
		},
		{
			name:       "oversize rejected",
			desc:       FileDescriptor{Name: "huge.glb", Size: 25_000_000},
			wantReason: "exceeds the maximal size",
		},
		{
			name:       "wrong mime rejected",
			desc:       FileDescriptor{Name: "cup.glb", Size: 10, ContentType: "image/png"},
			wantReason: "unsupported content type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.desc)
			require.Equal(t, tt.wantValid, res.Valid)
			if tt.wantValid {
				assert.Empty(t, res.Reason)
			} else {
				assert.Contains(t, res.Reason, tt.wantReason)
			}
		})
	}
}

func TestValidateDeterministic(t *testing.T) {
	v := NewValidator()
	desc := FileDescriptor{Name: "huge.glb", Size: 25_000_000}

	first := v.Validate(desc)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, v.Validate(desc))
	}
}

func TestValidateCustomLimits(t *testing.T) {
	v := NewValidator(
		WithMaxFileSize(1024),
		WithAllowedExtensions(".obj"),
		WithAllowedMIMETypes("model/obj"),
	)

	assert.True(t, v.Validate(FileDescriptor{Name: "chair.obj", Size: 100, ContentType: "model/obj"}).Valid)
	assert.False(t, v.Validate(FileDescriptor{Name: "chair.glb", Size: 100}).Valid)
	assert.False(t, v.Validate(FileDescriptor{Name: "chair.obj", Size: 4096}).Valid)
	assert.False(t, v.Validate(FileDescriptor{Name: "chair.obj", Size: 100, ContentType: "model/gltf-binary"}).Valid)
}

func TestInferContentType(t *testing.T) {
	assert.Equal(t, "model/gltf-binary", inferContentType("cup.glb"))
	assert.Equal(t, "model/gltf+json", inferContentType("scene.GLTF"))
	assert.Equal(t, "application/gltf-buffer", inferContentType("buffer.bin"))
	assert.Empty(t, inferContentType("readme.txt"))
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, "glb", formatOf("cup.glb"))
	assert.Equal(t, "glb", formatOf("CUP.GLB"))
	assert.Equal(t, "gltf", formatOf("scene.gltf"))
	assert.Equal(t, "gltf", formatOf("buffer.bin"))
}

func TestValidateRejectionListsExtensions(t *testing.T) {
	v := NewValidator()
	res := v.Validate(FileDescriptor{Name: "malware.exe", Size: 1})
	require.False(t, res.Valid)
	// The rejection names every acceptable format for the user.
	assert.Contains(t, res.Reason, strings.Join([]string{".bin", ".glb", ".gltf"}, ", "))
}
