// Package interfaces defines the core types and contracts shared by the
// institution registry components. It provides the boundary between the
// authority registry, signature ledger, workflow engine and document
// registry without implementation details.
package interfaces

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies a member, component instance or token holder.
type Address [20]byte

// NewAddressFromBytes creates an address from a 20-byte slice.
func NewAddressFromBytes(addr []byte) (Address, error) {
	if len(addr) != 20 {
		return Address{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res Address
	copy(res[:], addr)
	return res, nil
}

// NewAddressFromHex creates an address from a 40-character hex string,
// with or without a 0x prefix.
func NewAddressFromHex(addr string) (Address, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Address{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewAddressFromBytes(addrBytes)
}

// String returns the hex string representation of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns the raw 20-byte address.
func (a Address) Bytes() []byte {
	return a[:]
}

// Equal compares two addresses for equality.
func (a Address) Equal(other Address) bool {
	return a == other
}

// IsZero reports whether the address is the null address. The null address
// is the mint/burn counterparty for the certificate token.
func (a Address) IsZero() bool {
	return a == Address{}
}

// RoleID is an opaque capability identifier. Callers must not parse it.
type RoleID [32]byte

// NewRoleIDFromBytes creates a role id from a 32-byte slice.
func NewRoleIDFromBytes(id []byte) (RoleID, error) {
	if len(id) != 32 {
		return RoleID{}, errors.New("invalid role id length: must be 32 bytes")
	}

	var res RoleID
	copy(res[:], id)
	return res, nil
}

// NewRoleIDFromHex creates a role id from a 64-character hex string.
func NewRoleIDFromHex(id string) (RoleID, error) {
	clean := strings.TrimPrefix(id, "0x")
	if len(clean) != 64 {
		return RoleID{}, errors.New("invalid role id length: hex string must be 64 characters")
	}

	idBytes, err := hex.DecodeString(clean)
	if err != nil {
		return RoleID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewRoleIDFromBytes(idBytes)
}

// String returns the hex representation of the role id.
func (r RoleID) String() string {
	return hex.EncodeToString(r[:])
}

// Bytes returns the raw 32-byte role id.
func (r RoleID) Bytes() []byte {
	return r[:]
}

// IsZero reports whether the role id is unset.
func (r RoleID) IsZero() bool {
	return r == RoleID{}
}

// DeriveRoleID generates a role identifier for a custom role by hashing the
// role name, its creation time and the creator address. The combination
// keeps identifiers collision resistant across institutions and redeploys.
func DeriveRoleID(name string, createdAt time.Time, creator Address) RoleID {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt.Unix()))

	data := append([]byte(name), ts[:]...)
	data = append(data, creator[:]...)

	var id RoleID
	copy(id[:], crypto.Keccak256(data))
	return id
}

func wellKnownRole(name string) RoleID {
	var id RoleID
	copy(id[:], crypto.Keccak256([]byte(name)))
	return id
}

// Well-known capability roles. AdminRole and RoleCreatorRole are the two
// system roles that can never be deactivated; the rest are the
// cross-component capabilities wired at deployment time.
var (
	AdminRole         = wellKnownRole("INSTITUTION_ADMIN_ROLE")
	RoleCreatorRole   = wellKnownRole("ROLE_CREATOR_ROLE")
	WorkflowAdminRole = wellKnownRole("WORKFLOW_ADMIN_ROLE")
	CreatorRole       = wellKnownRole("DOCUMENT_CREATOR_ROLE")
	MinterRole        = wellKnownRole("CERTIFICATE_MINTER_ROLE")
	UpdaterRole       = wellKnownRole("STATE_UPDATER_ROLE")
	WorkflowRole      = wellKnownRole("WORKFLOW_ENGINE_ROLE")
)

// DocumentID is a monotonically assigned document identifier. Zero marks
// "no document" and is never assigned.
type DocumentID uint64

// ContentID is a 32-byte keccak256 hash uniquely identifying document content.
type ContentID [32]byte

// NewContentIDFromBytes creates a content id from a 32-byte slice.
func NewContentIDFromBytes(source []byte) (ContentID, error) {
	if len(source) != 32 {
		return ContentID{}, errors.New("invalid ContentID conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return ContentID(hash), nil
}

// NewContentIDFromHex creates a content id from a 64-character hex string.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ContentID(hash), nil
}

// ComputeContentID calculates the content id of raw document data.
func ComputeContentID(data []byte) ContentID {
	var hash [32]byte
	copy(hash[:], crypto.Keccak256(data))
	return ContentID(hash)
}

// String returns hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte hash.
func (id ContentID) Bytes() []byte {
	return id[:]
}

// Equal compares two content ids.
func (id ContentID) Equal(other ContentID) bool {
	return bytes.Equal(id[:], other[:])
}

// Signature is a 65-byte compact secp256k1 signature (r || s || v).
type Signature []byte

// SignatureLength is the expected compact signature size.
const SignatureLength = 65
