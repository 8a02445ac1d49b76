package sigledger

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/instidoc/institution-registry-backend/events"
	"github.com/instidoc/institution-registry-backend/interfaces"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger owns the append-only signature lists, keyed by document id, and
// consults the authority registry read-only for role checks.
type Ledger struct {
	mu        sync.RWMutex
	domain    Domain
	authority interfaces.CapabilityChecker
	now       func() time.Time

	records    map[interfaces.DocumentID][]interfaces.SignatureRecord
	signed     map[interfaces.DocumentID]map[interfaces.Address]bool
	roleSigned map[interfaces.DocumentID]map[interfaces.RoleID]bool
	counts     map[interfaces.DocumentID]int

	log *events.Log
}

var _ interfaces.SignatureLedger = (*Ledger)(nil)

// NewLedger creates an empty ledger for one institution domain.
func NewLedger(domain Domain, authority interfaces.CapabilityChecker, opts ...Option) *Ledger {
	l := &Ledger{
		domain:     domain,
		authority:  authority,
		now:        time.Now,
		records:    make(map[interfaces.DocumentID][]interfaces.SignatureRecord),
		signed:     make(map[interfaces.DocumentID]map[interfaces.Address]bool),
		roleSigned: make(map[interfaces.DocumentID]map[interfaces.RoleID]bool),
		counts:     make(map[interfaces.DocumentID]int),
		log:        events.NewLog(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Domain returns the domain the ledger verifies signatures under.
func (l *Ledger) Domain() Domain {
	return l.domain
}

// AddSignature records the caller's own signature for a document.
func (l *Ledger) AddSignature(caller interfaces.Address, doc interfaces.DocumentID, role interfaces.RoleID, contentHash interfaces.ContentID, deadline time.Time, sig interfaces.Signature) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addSignatureLocked(doc, caller, role, contentHash, deadline, sig)
}

// AddSignatureForSigner records a signature produced by a third party.
// Restricted to the workflow engine capability: the relay cannot forge a
// signature, cryptographic recovery still binds the claimed signer.
func (l *Ledger) AddSignatureForSigner(caller interfaces.Address, doc interfaces.DocumentID, signer interfaces.Address, role interfaces.RoleID, contentHash interfaces.ContentID, deadline time.Time, sig interfaces.Signature) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.authority.HasRole(caller, interfaces.WorkflowRole) {
		return fmt.Errorf("%w: workflow engine", interfaces.ErrUnauthorized)
	}
	return l.addSignatureLocked(doc, signer, role, contentHash, deadline, sig)
}

func (l *Ledger) addSignatureLocked(doc interfaces.DocumentID, signer interfaces.Address, role interfaces.RoleID, contentHash interfaces.ContentID, deadline time.Time, sig interfaces.Signature) error {
	now := l.now()
	if now.After(deadline) {
		return interfaces.ErrDeadlinePassed
	}
	if l.signed[doc][signer] {
		return interfaces.ErrAlreadySigned
	}
	if !l.authority.HasRole(signer, role) {
		return interfaces.ErrInvalidRole
	}

	msg := ApprovalMessage{
		DocumentID:  doc,
		Signer:      signer,
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	}
	recovered, err := msg.RecoverSigner(l.domain, sig)
	if err != nil {
		return err
	}
	if !recovered.Equal(signer) {
		return fmt.Errorf("%w: recovered %s, claimed %s", interfaces.ErrInvalidSignature, recovered, signer)
	}

	l.records[doc] = append(l.records[doc], interfaces.SignatureRecord{
		DocumentID:  doc,
		Signer:      signer,
		Role:        role,
		SignedAt:    now,
		ContentHash: contentHash,
		Deadline:    deadline,
		Valid:       true,
	})
	if l.signed[doc] == nil {
		l.signed[doc] = make(map[interfaces.Address]bool)
	}
	l.signed[doc][signer] = true
	if l.roleSigned[doc] == nil {
		l.roleSigned[doc] = make(map[interfaces.RoleID]bool)
	}
	l.roleSigned[doc][role] = true
	l.counts[doc]++

	attrs := map[string]string{
		"document": strconv.FormatUint(uint64(doc), 10),
		"signer":   signer.String(),
		"role":     role.String(),
	}
	l.log.Emit("signature_added", now, attrs)
	l.log.Emit("signature_verified", now, map[string]string{
		"document": attrs["document"],
		"signer":   attrs["signer"],
		"valid":    "true",
	})
	return nil
}

// VerifyExternalSignature checks the cryptographic condition only, with no
// side effects. Intended for off-band and UI validation.
func (l *Ledger) VerifyExternalSignature(doc interfaces.DocumentID, signer interfaces.Address, role interfaces.RoleID, contentHash interfaces.ContentID, deadline time.Time, sig interfaces.Signature) (bool, error) {
	msg := ApprovalMessage{
		DocumentID:  doc,
		Signer:      signer,
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	}
	recovered, err := msg.RecoverSigner(l.domain, sig)
	if err != nil {
		return false, nil
	}
	return recovered.Equal(signer), nil
}

// DocumentSignatures returns a copy of the append-only signature list.
func (l *Ledger) DocumentSignatures(doc interfaces.DocumentID) []interfaces.SignatureRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]interfaces.SignatureRecord(nil), l.records[doc]...)
}

// SignatureCount returns the number of accepted signatures for a document.
func (l *Ledger) SignatureCount(doc interfaces.DocumentID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[doc]
}

// RoleSigned reports whether the role has been satisfied for the document.
func (l *Ledger) RoleSigned(doc interfaces.DocumentID, role interfaces.RoleID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roleSigned[doc][role]
}

// HasSigned reports whether the signer has an accepted signature for the document.
func (l *Ledger) HasSigned(doc interfaces.DocumentID, signer interfaces.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.signed[doc][signer]
}

// Events returns the emitted event log.
func (l *Ledger) Events() []events.Event {
	return l.log.Events()
}
