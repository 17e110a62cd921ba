package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpen(t *testing.T) {
	key := testKey(t)
	aad := []byte("laravel_session|localhost")

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "session cookie", plaintext: []byte("eyJpdiI6IjRrN2ZQ")},
		{name: "empty value", plaintext: []byte{}},
		{name: "binary", plaintext: []byte{0, 1, 2, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(key, tt.plaintext, aad)
			require.NoError(t, err)

			// nonce + ciphertext + auth_tag
			assert.Len(t, sealed, NonceSize+len(tt.plaintext)+16)

			opened, err := Open(key, sealed, aad)
			require.NoError(t, err)
			assert.Equal(t, len(tt.plaintext), len(opened))
			if len(tt.plaintext) > 0 {
				assert.Equal(t, tt.plaintext, opened)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	key := testKey(t)
	aad := []byte("XSRF-TOKEN|localhost")
	sealed, err := Seal(key, []byte("token"), aad)
	require.NoError(t, err)

	tests := []struct {
		name   string
		errMsg string
		key    []byte
		sealed []byte
		aad    []byte
	}{
		{name: "too short", key: key, sealed: make([]byte, 5), aad: aad, errMsg: "encrypted data too short"},
		{name: "invalid key length", key: make([]byte, 16), sealed: sealed, aad: aad, errMsg: "encryption key must be 32 bytes"},
		{name: "wrong key", key: make([]byte, KeySize), sealed: sealed, aad: aad, errMsg: "failed to decrypt"},
		{name: "wrong context", key: key, sealed: sealed, aad: []byte("XSRF-TOKEN|example.com"), errMsg: "failed to decrypt"},
		{name: "corrupted", key: key, sealed: sealed[:len(sealed)-1], aad: aad, errMsg: "failed to decrypt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened, err := Open(tt.key, tt.sealed, tt.aad)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Nil(t, opened)
		})
	}
}

func TestSeal_Randomness(t *testing.T) {
	key := testKey(t)

	a, err := Seal(key, []byte("same"), nil)
	require.NoError(t, err)
	b, err := Seal(key, []byte("same"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "nonce должен быть разным для каждого шифрования")
}

func TestSealStringOpenString(t *testing.T) {
	key := testKey(t)

	encoded, err := SealString(key, "abc%3D%3D", []byte("ctx"))
	require.NoError(t, err)
	assert.NotContains(t, encoded, "abc")

	plain, err := OpenString(key, encoded, []byte("ctx"))
	require.NoError(t, err)
	assert.Equal(t, "abc%3D%3D", plain)

	_, err = OpenString(key, "not-base64!!", []byte("ctx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode base64")
}
