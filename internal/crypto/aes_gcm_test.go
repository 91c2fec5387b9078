package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	plaintext := []byte(`{"bot_token":"xoxb-secret"}`)
	blob, err := codec.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, blob)

	got, err := codec.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCodecRejectsBadKeySize(t *testing.T) {
	_, err := NewCodec([]byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestCodecRejectsTamperedBlob(t *testing.T) {
	codec, err := NewCodec(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	blob, err := codec.Encrypt([]byte("payload"))
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xFF
	_, err = codec.Decrypt(blob)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestCodecRejectsShortBlob(t *testing.T) {
	codec, err := NewCodec(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	_, err = codec.Decrypt([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestCodecJSONRoundTrip(t *testing.T) {
	codec, err := NewCodec(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	in := map[string]string{"internal_integration_secret": "ntn_abc123"}
	blob, err := codec.EncryptJSON(in)
	require.NoError(t, err)

	out := map[string]string{}
	require.NoError(t, codec.DecryptJSON(blob, &out))
	assert.Equal(t, in, out)
}
