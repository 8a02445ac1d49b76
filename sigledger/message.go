// Package sigledger implements the signature ledger: verification of
// off-band typed approval signatures against the authority registry and the
// append-only per-document signature accounting.
package sigledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/instidoc/institution-registry-backend/interfaces"
)

// Domain binds approval signatures to one institution, contract version and
// ledger instance so they cannot be replayed across institutions or
// redeployments.
type Domain struct {
	Institution string
	Version     string
	Instance    interfaces.Address
}

var (
	domainTypeHash   = crypto.Keccak256Hash([]byte("InstitutionApprovalDomain(string institution,string version,address instance)"))
	approvalTypeHash = crypto.Keccak256Hash([]byte("Approval(uint256 documentId,address signer,bytes32 role,bytes32 contentHash,uint256 deadline)"))
)

func packArgs(types []string, values ...interface{}) ([]byte, error) {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, err
		}
		args[i] = abi.Argument{Type: ty}
	}
	return args.Pack(values...)
}

// Separator returns the 32-byte domain separator.
func (d Domain) Separator() ([32]byte, error) {
	packed, err := packArgs(
		[]string{"bytes32", "bytes32", "bytes32", "address"},
		[32]byte(domainTypeHash),
		[32]byte(crypto.Keccak256Hash([]byte(d.Institution))),
		[32]byte(crypto.Keccak256Hash([]byte(d.Version))),
		common.BytesToAddress(d.Instance.Bytes()),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to pack domain: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// ApprovalMessage is the canonical structured message an approver signs.
// Every field is bound into the digest; altering any of them invalidates
// the signature.
type ApprovalMessage struct {
	DocumentID  interfaces.DocumentID
	Signer      interfaces.Address
	Role        interfaces.RoleID
	ContentHash interfaces.ContentID
	Deadline    time.Time
}

func (m ApprovalMessage) structHash() ([32]byte, error) {
	packed, err := packArgs(
		[]string{"bytes32", "uint256", "address", "bytes32", "bytes32", "uint256"},
		[32]byte(approvalTypeHash),
		new(big.Int).SetUint64(uint64(m.DocumentID)),
		common.BytesToAddress(m.Signer.Bytes()),
		[32]byte(m.Role),
		[32]byte(m.ContentHash),
		big.NewInt(m.Deadline.Unix()),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to pack approval: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// Digest returns the domain-separated 32-byte digest to sign.
func (m ApprovalMessage) Digest(d Domain) ([32]byte, error) {
	sep, err := d.Separator()
	if err != nil {
		return [32]byte{}, err
	}
	structHash, err := m.structHash()
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, sep[:], structHash[:]), nil
}

// RecoverSigner recovers the signing address from a 65-byte compact
// signature over this message in the given domain.
func (m ApprovalMessage) RecoverSigner(d Domain, sig interfaces.Signature) (interfaces.Address, error) {
	if len(sig) != interfaces.SignatureLength {
		return interfaces.Address{}, fmt.Errorf("%w: signature must be %d bytes", interfaces.ErrInvalidSignature, interfaces.SignatureLength)
	}

	digest, err := m.Digest(d)
	if err != nil {
		return interfaces.Address{}, err
	}

	// Accept both the raw recovery id and the legacy 27/28 encoding.
	normalized := make([]byte, interfaces.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pubkey, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return interfaces.Address{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidSignature, err)
	}

	recovered := crypto.PubkeyToAddress(*pubkey)
	return interfaces.NewAddressFromBytes(recovered.Bytes())
}
