package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewEncryptorRejectsShortKey(t *testing.T) {
	_, err := NewEncryptor("too-short")
	assert.Error(t, err)

	_, err = NewEncryptor(strings.Repeat("k", 31))
	assert.Error(t, err)

	_, err = NewEncryptor(testKey)
	assert.NoError(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	for _, plaintext := range []string{"Juan García López", "12345678Z", "", "ünïcode ✓"} {
		ciphertext, err := enc.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, []byte(plaintext), ciphertext)

		decrypted, err := enc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	a, err := enc.Encrypt("12345678Z")
	require.NoError(t, err)
	b, err := enc.Encrypt("12345678Z")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "GCM nonces must randomize ciphertext")
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("sensitive")
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = enc.Decrypt(ciphertext)
	assert.Error(t, err)

	_, err = enc.Decrypt([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestFingerprintIsDeterministic(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	assert.Equal(t, enc.Fingerprint("ES:12345678Z"), enc.Fingerprint("ES:12345678Z"))
	assert.NotEqual(t, enc.Fingerprint("ES:12345678Z"), enc.Fingerprint("MX:12345678Z"))

	other, err := NewEncryptor(strings.Repeat("x", 32))
	require.NoError(t, err)
	assert.NotEqual(t, enc.Fingerprint("ES:12345678Z"), other.Fingerprint("ES:12345678Z"),
		"fingerprints must be keyed")
}

func TestHMACSignAndVerify(t *testing.T) {
	secret := strings.Repeat("s", 32)
	payload := []byte(`{"provider_reference":"r1"}`)

	signature := SignHMAC(secret, payload)
	assert.True(t, VerifyHMAC(secret, payload, signature))

	assert.False(t, VerifyHMAC(secret, payload, "deadbeef"))
	assert.False(t, VerifyHMAC(secret, payload, "not-hex!"))
	assert.False(t, VerifyHMAC(secret, []byte("other payload"), signature))
	assert.False(t, VerifyHMAC("wrong-secret-wrong-secret-wrong!", payload, signature))
}
