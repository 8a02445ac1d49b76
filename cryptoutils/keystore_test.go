package cryptoutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptKey(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	blob, err := EncryptKey(signer, []byte("hunter2"))
	require.NoError(t, err)

	restored, err := DecryptKey(blob, []byte("hunter2"))
	require.NoError(t, err)
	require.Equal(t, signer.Address(), restored.Address())
	require.Equal(t, signer.ExportHex(), restored.ExportHex())
}

func TestDecryptKeyWrongPassword(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	blob, err := EncryptKey(signer, []byte("hunter2"))
	require.NoError(t, err)

	_, err = DecryptKey(blob, []byte("hunter3"))
	require.Error(t, err)
}

func TestDecryptKeyTruncatedBlob(t *testing.T) {
	_, err := DecryptKey([]byte("short"), []byte("hunter2"))
	require.Error(t, err)
}

func TestEncryptKeyFreshSaltPerCall(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	a, err := EncryptKey(signer, []byte("hunter2"))
	require.NoError(t, err)
	b, err := EncryptKey(signer, []byte("hunter2"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSaveAndLoadKeyFile(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "approval.key")
	require.NoError(t, SaveKeyFile(path, signer, []byte("hunter2")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restored, err := LoadKeyFile(path, []byte("hunter2"))
	require.NoError(t, err)
	require.Equal(t, signer.Address(), restored.Address())

	_, err = LoadKeyFile(filepath.Join(t.TempDir(), "missing.key"), []byte("hunter2"))
	require.Error(t, err)
}

func TestSignerFromHexRoundTrip(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	restored, err := SignerFromHex(signer.ExportHex())
	require.NoError(t, err)
	require.Equal(t, signer.Address(), restored.Address())

	digest := [32]byte{1, 2, 3}
	a, err := signer.SignDigest(digest)
	require.NoError(t, err)
	b, err := restored.SignDigest(digest)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
