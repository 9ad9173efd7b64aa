package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase")
	require.NoError(t, err)

	sealed, err := enc.Encrypt("investor-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, "investor-password-123", sealed)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "investor-password-123", opened)
}

func TestEncryptProducesUniqueCiphertext(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase")
	require.NoError(t, err)

	a, err := enc.Encrypt("same-value")
	require.NoError(t, err)
	b, err := enc.Encrypt("same-value")
	require.NoError(t, err)

	// Random nonces mean equal plaintexts never produce equal ciphertexts.
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	encA, err := NewEncryptor("passphrase-a")
	require.NoError(t, err)
	encB, err := NewEncryptor("passphrase-b")
	require.NoError(t, err)

	sealed, err := encA.Encrypt("secret")
	require.NoError(t, err)

	_, err = encB.Decrypt(sealed)
	assert.Error(t, err)
}

func TestDecryptGarbageFails(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase")
	require.NoError(t, err)

	_, err = enc.Decrypt("not-base64!!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("c2hvcnQ=")
	assert.Error(t, err)
}

func TestEmptyPassphraseRejected(t *testing.T) {
	_, err := NewEncryptor("")
	assert.Error(t, err)
}
