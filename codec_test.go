package modelstore

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	large := make([]byte, defaultMaxFileSize)
	_, err := rand.Read(large)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "single byte", data: []byte{0x00}},
		{name: "glb magic", data: []byte("glTF\x02\x00\x00\x00")},
		{name: "all byte values", data: allBytes()},
		{name: "max size", data: large},
	}

	for _, codecName := range []string{"plain", "compressed"} {
		codec, err := newCodec(codecName == "compressed")
		require.NoError(t, err)

		for _, tt := range tests {
			t.Run(codecName+"/"+tt.name, func(t *testing.T) {
				out, err := codec.Decode(codec.Encode(tt.data))
				require.NoError(t, err)
				require.True(t, bytes.Equal(tt.data, out))
			})
		}
	}
}

func TestCodecPlainIsBase64(t *testing.T) {
	codec, err := newCodec(false)
	require.NoError(t, err)

	data := []byte("binary model payload")
	// The plain codec's output is the persisted wire format: standard
	// alphabet base64 of the raw bytes, nothing else.
	require.Equal(t, base64.StdEncoding.EncodeToString(data), codec.Encode(data))
}

func TestCodecDecodeRejectsGarbage(t *testing.T) {
	codec, err := newCodec(false)
	require.NoError(t, err)

	_, err = codec.Decode("not//valid==base64!!")
	require.Error(t, err)
}

func TestCodecCompressedDecodeRejectsPlainRecord(t *testing.T) {
	plain, err := newCodec(false)
	require.NoError(t, err)
	compressed, err := newCodec(true)
	require.NoError(t, err)

	// A record written without compression is not a zstd frame; the
	// compressed codec must fail it instead of returning wrong bytes.
	_, err = compressed.Decode(plain.Encode([]byte("raw payload")))
	require.Error(t, err)
}

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
