// Package cryptoutils provides the client-side signing primitives: secp256k1
// approval signers and the password-encrypted key file they are stored in.
package cryptoutils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

// ApprovalSigner holds a secp256k1 key and signs 32-byte digests. It never
// sees message structure; digest construction lives with the ledger so the
// signer cannot drift from the verifier.
type ApprovalSigner struct {
	key *ecdsa.PrivateKey
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*ApprovalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &ApprovalSigner{key: key}, nil
}

// NewSigner wraps an existing private key.
func NewSigner(key *ecdsa.PrivateKey) *ApprovalSigner {
	return &ApprovalSigner{key: key}
}

// SignerFromHex parses a hex-encoded 32-byte private key.
func SignerFromHex(hexkey string) (*ApprovalSigner, error) {
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &ApprovalSigner{key: key}, nil
}

// Address returns the signer's institutional address.
func (s *ApprovalSigner) Address() interfaces.Address {
	addr := crypto.PubkeyToAddress(s.key.PublicKey)
	out, _ := interfaces.NewAddressFromBytes(addr.Bytes())
	return out
}

// SignDigest produces a 65-byte compact signature over a prepared digest.
func (s *ApprovalSigner) SignDigest(digest [32]byte) (interfaces.Signature, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return interfaces.Signature(sig), nil
}

// ExportHex returns the hex-encoded private key. Handle with care.
func (s *ApprovalSigner) ExportHex() string {
	return hex.EncodeToString(crypto.FromECDSA(s.key))
}
