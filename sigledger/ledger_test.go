package sigledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/instidoc/institution-registry-backend/cryptoutils"
	"github.com/instidoc/institution-registry-backend/interfaces"
)

// grantTable is a static capability table standing in for the authority.
type grantTable map[interfaces.Address]map[interfaces.RoleID]bool

func (g grantTable) HasRole(addr interfaces.Address, role interfaces.RoleID) bool {
	return g[addr][role]
}

func (g grantTable) grant(addr interfaces.Address, role interfaces.RoleID) {
	if g[addr] == nil {
		g[addr] = make(map[interfaces.RoleID]bool)
	}
	g[addr][role] = true
}

func testDomain() Domain {
	instance, _ := interfaces.NewAddressFromHex("5555555555555555555555555555555555555555")
	return Domain{Institution: "Test University", Version: "1", Instance: instance}
}

func signApproval(t *testing.T, signer *cryptoutils.ApprovalSigner, d Domain, msg ApprovalMessage) interfaces.Signature {
	t.Helper()
	digest, err := msg.Digest(d)
	require.NoError(t, err)
	sig, err := signer.SignDigest(digest)
	require.NoError(t, err)
	return sig
}

func TestAddSignature(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)

	role := interfaces.DeriveRoleID("APPROVER", time.Unix(0, 0), interfaces.Address{})
	grants := grantTable{}
	grants.grant(signer.Address(), role)

	domain := testDomain()
	ledger := NewLedger(domain, grants)

	contentHash := interfaces.ComputeContentID([]byte("diploma body"))
	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	msg := ApprovalMessage{
		DocumentID:  1,
		Signer:      signer.Address(),
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	}
	sig := signApproval(t, signer, domain, msg)

	require.NoError(t, ledger.AddSignature(signer.Address(), 1, role, contentHash, deadline, sig))

	require.Equal(t, 1, ledger.SignatureCount(1))
	require.True(t, ledger.HasSigned(1, signer.Address()))
	require.True(t, ledger.RoleSigned(1, role))

	records := ledger.DocumentSignatures(1)
	require.Len(t, records, 1)
	require.Equal(t, signer.Address(), records[0].Signer)
	require.Equal(t, role, records[0].Role)
	require.True(t, records[0].Valid)
}

func TestAddSignatureAlteredFieldRejected(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)

	role := interfaces.DeriveRoleID("APPROVER", time.Unix(0, 0), interfaces.Address{})
	grants := grantTable{}
	grants.grant(signer.Address(), role)

	domain := testDomain()
	ledger := NewLedger(domain, grants)

	contentHash := interfaces.ComputeContentID([]byte("diploma body"))
	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	sig := signApproval(t, signer, domain, ApprovalMessage{
		DocumentID:  1,
		Signer:      signer.Address(),
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	})

	// Submitting the signature against a different document fails recovery
	err = ledger.AddSignature(signer.Address(), 2, role, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrInvalidSignature)
	require.Zero(t, ledger.SignatureCount(2))

	// Tampering with the content hash likewise
	otherHash := interfaces.ComputeContentID([]byte("forged body"))
	err = ledger.AddSignature(signer.Address(), 1, role, otherHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrInvalidSignature)
}

func TestAddSignatureDuplicateRejected(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)

	role := interfaces.DeriveRoleID("APPROVER", time.Unix(0, 0), interfaces.Address{})
	grants := grantTable{}
	grants.grant(signer.Address(), role)

	domain := testDomain()
	ledger := NewLedger(domain, grants)

	contentHash := interfaces.ComputeContentID([]byte("diploma body"))
	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	sig := signApproval(t, signer, domain, ApprovalMessage{
		DocumentID:  1,
		Signer:      signer.Address(),
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	})

	require.NoError(t, ledger.AddSignature(signer.Address(), 1, role, contentHash, deadline, sig))
	err = ledger.AddSignature(signer.Address(), 1, role, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrAlreadySigned)
	require.Equal(t, 1, ledger.SignatureCount(1))
}

func TestAddSignatureDeadlinePassed(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)

	role := interfaces.DeriveRoleID("APPROVER", time.Unix(0, 0), interfaces.Address{})
	grants := grantTable{}
	grants.grant(signer.Address(), role)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	domain := testDomain()
	ledger := NewLedger(domain, grants, WithClock(func() time.Time { return now }))

	contentHash := interfaces.ComputeContentID([]byte("diploma body"))
	deadline := now.Add(-time.Minute)
	sig := signApproval(t, signer, domain, ApprovalMessage{
		DocumentID:  1,
		Signer:      signer.Address(),
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	})

	err = ledger.AddSignature(signer.Address(), 1, role, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrDeadlinePassed)
}

func TestAddSignatureRoleNotHeld(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)

	role := interfaces.DeriveRoleID("APPROVER", time.Unix(0, 0), interfaces.Address{})
	domain := testDomain()
	ledger := NewLedger(domain, grantTable{})

	contentHash := interfaces.ComputeContentID([]byte("diploma body"))
	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	sig := signApproval(t, signer, domain, ApprovalMessage{
		DocumentID:  1,
		Signer:      signer.Address(),
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	})

	err = ledger.AddSignature(signer.Address(), 1, role, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrInvalidRole)
}

func TestAddSignatureForSigner(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)
	relay, _ := interfaces.NewAddressFromHex("2222222222222222222222222222222222222222")

	role := interfaces.DeriveRoleID("APPROVER", time.Unix(0, 0), interfaces.Address{})
	grants := grantTable{}
	grants.grant(signer.Address(), role)
	grants.grant(relay, interfaces.WorkflowRole)

	domain := testDomain()
	ledger := NewLedger(domain, grants)

	contentHash := interfaces.ComputeContentID([]byte("diploma body"))
	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	sig := signApproval(t, signer, domain, ApprovalMessage{
		DocumentID:  1,
		Signer:      signer.Address(),
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	})

	// A caller without the workflow capability cannot relay
	err = ledger.AddSignatureForSigner(signer.Address(), 1, signer.Address(), role, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrUnauthorized)

	require.NoError(t, ledger.AddSignatureForSigner(relay, 1, signer.Address(), role, contentHash, deadline, sig))
	require.True(t, ledger.HasSigned(1, signer.Address()))

	// The relay cannot attribute the signature to someone else
	other, _ := interfaces.NewAddressFromHex("3333333333333333333333333333333333333333")
	grants.grant(other, role)
	err = ledger.AddSignatureForSigner(relay, 2, other, role, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrInvalidSignature)
}

func TestVerifyExternalSignature(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)

	role := interfaces.DeriveRoleID("APPROVER", time.Unix(0, 0), interfaces.Address{})
	domain := testDomain()
	ledger := NewLedger(domain, grantTable{})

	contentHash := interfaces.ComputeContentID([]byte("diploma body"))
	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	sig := signApproval(t, signer, domain, ApprovalMessage{
		DocumentID:  7,
		Signer:      signer.Address(),
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	})

	valid, err := ledger.VerifyExternalSignature(7, signer.Address(), role, contentHash, deadline, sig)
	require.NoError(t, err)
	require.True(t, valid)

	// Verification has no side effects on the ledger
	require.Zero(t, ledger.SignatureCount(7))
	require.False(t, ledger.HasSigned(7, signer.Address()))

	valid, err = ledger.VerifyExternalSignature(8, signer.Address(), role, contentHash, deadline, sig)
	require.NoError(t, err)
	require.False(t, valid)

	// A malformed signature reports invalid rather than failing
	valid, err = ledger.VerifyExternalSignature(7, signer.Address(), role, contentHash, deadline, sig[:10])
	require.NoError(t, err)
	require.False(t, valid)
}

func TestRecoverSignerLegacyVEncoding(t *testing.T) {
	signer, err := cryptoutils.GenerateSigner()
	require.NoError(t, err)

	domain := testDomain()
	msg := ApprovalMessage{
		DocumentID:  1,
		Signer:      signer.Address(),
		Role:        interfaces.AdminRole,
		ContentHash: interfaces.ComputeContentID([]byte("body")),
		Deadline:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	sig := signApproval(t, signer, domain, msg)

	legacy := make(interfaces.Signature, len(sig))
	copy(legacy, sig)
	legacy[64] += 27

	recovered, err := msg.RecoverSigner(domain, legacy)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), recovered)
}
