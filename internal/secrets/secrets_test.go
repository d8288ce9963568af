package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := New("test-passphrase", []byte("fixed-test-salt-16b"), nil)

	stored, err := svc.Encrypt("hunter2")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(stored))
	assert.Contains(t, stored, prefixAESv2)

	cleartext, err := svc.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cleartext)
}

func TestLegacyAESPrefixIsDecryptOnlyButReadable(t *testing.T) {
	svc := New("test-passphrase", []byte("fixed-test-salt-16b"), nil)

	v2, err := svc.Encrypt("hunter2")
	require.NoError(t, err)

	// Simulate a value that was written under the old (unversioned) prefix
	// by a prior release, sharing the same ciphertext body.
	legacy := prefixAESv1 + v2[len(prefixAESv2):]
	cleartext, err := svc.Decrypt(legacy)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cleartext)
}

func TestUnprefixedValueTreatedAsCleartext(t *testing.T) {
	svc := New("test-passphrase", []byte("fixed-test-salt-16b"), nil)
	cleartext, err := svc.Decrypt("plainpassword")
	require.NoError(t, err)
	assert.Equal(t, "plainpassword", cleartext)
}

type stubResolver struct{ value string }

func (r stubResolver) Resolve(ref string) (string, error) { return r.value, nil }

func TestVaultSchemeDelegatesToResolver(t *testing.T) {
	svc := New("test-passphrase", []byte("fixed-test-salt-16b"), stubResolver{value: "from-vault"})
	cleartext, err := svc.Decrypt("vault:secret/pesit/partner01")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", cleartext)
}

func TestVaultSchemeFailsWithoutResolver(t *testing.T) {
	svc := New("test-passphrase", []byte("fixed-test-salt-16b"), nil)
	_, err := svc.Decrypt("vault:secret/pesit/partner01")
	assert.Error(t, err)
}

func TestIsEncryptedRecognizesAllSchemes(t *testing.T) {
	assert.True(t, IsEncrypted("AES:v2:abc"))
	assert.True(t, IsEncrypted("AES:abc"))
	assert.True(t, IsEncrypted("ENC:abc"))
	assert.True(t, IsEncrypted("vault:abc"))
	assert.False(t, IsEncrypted("plaincleartext"))
}
