package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/argon2"
)

// Key file format: [salt (16 bytes)][nonce (12 bytes)][AES-GCM ciphertext].
// The ciphertext is the raw 32-byte secp256k1 private key.
const (
	keystoreSaltLength  = 16
	keystoreNonceLength = 12
)

// Argon2id parameters for the key-file KDF.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

func deriveKeystoreKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// EncryptKey seals the signer's private key with a password-derived key.
// A fresh salt and nonce are generated on every call.
func EncryptKey(signer *ApprovalSigner, password []byte) ([]byte, error) {
	salt := make([]byte, keystoreSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aesBlock, err := aes.NewCipher(deriveKeystoreKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, keystoreNonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, nonce, crypto.FromECDSA(signer.key), nil)

	out := make([]byte, 0, keystoreSaltLength+keystoreNonceLength+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptKey opens a sealed key file blob with the password.
func DecryptKey(blob []byte, password []byte) (*ApprovalSigner, error) {
	if len(blob) < keystoreSaltLength+keystoreNonceLength+1 {
		return nil, errors.New("key file too short")
	}
	salt := blob[:keystoreSaltLength]
	nonce := blob[keystoreSaltLength : keystoreSaltLength+keystoreNonceLength]
	ciphertext := blob[keystoreSaltLength+keystoreNonceLength:]

	aesBlock, err := aes.NewCipher(deriveKeystoreKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	raw, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("failed to decrypt key file: wrong password or corrupted file")
	}

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decrypted key: %w", err)
	}
	return &ApprovalSigner{key: key}, nil
}

// SaveKeyFile writes the sealed key to disk readable only by the owner.
func SaveKeyFile(path string, signer *ApprovalSigner, password []byte) error {
	blob, err := EncryptKey(signer, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadKeyFile reads and opens a sealed key file.
func LoadKeyFile(path string, password []byte) (*ApprovalSigner, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return DecryptKey(blob, password)
}
