// Package docregistry implements the document registry: document records,
// lifecycle state recomputation driven by signature counts, and the
// non-transferable certificate token minted once per document.
package docregistry

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/instidoc/institution-registry-backend/events"
	"github.com/instidoc/institution-registry-backend/interfaces"
)

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry owns document records and their certificate tokens. It reads
// signature counts from the ledger and membership from the authority; it
// never calls back into the workflow engine.
type Registry struct {
	mu   sync.RWMutex
	busy atomic.Bool

	nftName   string
	nftSymbol string
	authority interfaces.AuthorityView
	ledger    interfaces.SignatureCounter
	now       func() time.Time

	nextID interfaces.DocumentID
	docs   map[interfaces.DocumentID]*interfaces.Document
	order  []interfaces.DocumentID
	owners map[interfaces.DocumentID]interfaces.Address

	log *events.Log
}

var _ interfaces.DocumentRegistry = (*Registry)(nil)

// NewRegistry creates an empty document registry for one institution.
func NewRegistry(nftName, nftSymbol string, authority interfaces.AuthorityView, ledger interfaces.SignatureCounter, opts ...Option) *Registry {
	r := &Registry{
		nftName:   nftName,
		nftSymbol: nftSymbol,
		authority: authority,
		ledger:    ledger,
		now:       time.Now,
		nextID:    1,
		docs:      make(map[interfaces.DocumentID]*interfaces.Document),
		owners:    make(map[interfaces.DocumentID]interfaces.Address),
		log:       events.NewLog(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the certificate collection name.
func (r *Registry) Name() string { return r.nftName }

// Symbol returns the certificate collection symbol.
func (r *Registry) Symbol() string { return r.nftSymbol }

// CreateDocument registers a document, assigns the next sequential id and
// mints its one-and-only certificate to the beneficiary. Restricted to the
// minter capability. The beneficiary must be a current member; it need not
// be the creator. At least one required role must be named, without repeats,
// so every document can eventually reach the completed state.
func (r *Registry) CreateDocument(caller, beneficiary interfaces.Address, title, description, contentRef string, contentHash interfaces.ContentID, deadline time.Time, requiredRoles []interfaces.RoleID, docType string) (interfaces.DocumentID, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return 0, interfaces.ErrReentrantCall
	}
	defer r.busy.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.authority.HasRole(caller, interfaces.MinterRole) {
		return 0, fmt.Errorf("%w: certificate minter", interfaces.ErrUnauthorized)
	}
	if beneficiary.IsZero() {
		return 0, fmt.Errorf("%w: zero beneficiary", interfaces.ErrPrecondition)
	}
	if !r.authority.IsActiveMember(beneficiary) {
		return 0, fmt.Errorf("%w: beneficiary is not a member", interfaces.ErrPrecondition)
	}
	if title == "" {
		return 0, fmt.Errorf("%w: empty title", interfaces.ErrPrecondition)
	}
	if len(requiredRoles) == 0 {
		return 0, fmt.Errorf("%w: no required roles", interfaces.ErrPrecondition)
	}
	seen := make(map[interfaces.RoleID]bool, len(requiredRoles))
	for _, role := range requiredRoles {
		if seen[role] {
			return 0, fmt.Errorf("%w: duplicate required role %s", interfaces.ErrPrecondition, role)
		}
		seen[role] = true
	}

	now := r.now()
	id := r.nextID
	r.nextID++

	r.docs[id] = &interfaces.Document{
		ID:                 id,
		Title:              title,
		Description:        description,
		ContentHash:        contentHash,
		ContentRef:         contentRef,
		State:              interfaces.StatePendingSignatures,
		CreatedAt:          now,
		Deadline:           deadline,
		Creator:            caller,
		Beneficiary:        beneficiary,
		RequiredRoles:      append([]interfaces.RoleID(nil), requiredRoles...),
		RequiredSignatures: len(requiredRoles),
		DocumentType:       docType,
	}
	r.order = append(r.order, id)

	r.mintLocked(beneficiary, id, now)

	r.log.Emit("document_created", now, map[string]string{
		"document":    strconv.FormatUint(uint64(id), 10),
		"creator":     caller.String(),
		"beneficiary": beneficiary.String(),
		"type":        docType,
	})
	return id, nil
}

// UpdateDocumentState recomputes the lifecycle state purely from the
// ledger's signature count, the required count and the deadline. Restricted
// to the state-updater capability. The recomputation is idempotent and may
// be invoked redundantly.
func (r *Registry) UpdateDocumentState(caller interfaces.Address, id interfaces.DocumentID) error {
	if !r.busy.CompareAndSwap(false, true) {
		return interfaces.ErrReentrantCall
	}
	defer r.busy.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.authority.HasRole(caller, interfaces.UpdaterRole) {
		return fmt.Errorf("%w: state updater", interfaces.ErrUnauthorized)
	}
	doc, ok := r.docs[id]
	if !ok {
		return interfaces.ErrUnknownDocument
	}

	received := r.ledger.SignatureCount(id)

	var state interfaces.DocumentState
	switch {
	case received >= doc.RequiredSignatures:
		state = interfaces.StateCompleted
	case received > 0:
		state = interfaces.StatePartiallySigned
	default:
		state = interfaces.StatePendingSignatures
	}

	now := r.now()
	if now.After(doc.Deadline) && state != interfaces.StateCompleted {
		state = interfaces.StateCancelled
	}

	if state != doc.State {
		r.log.Emit("state_changed", now, map[string]string{
			"document": strconv.FormatUint(uint64(id), 10),
			"from":     doc.State.String(),
			"to":       state.String(),
		})
		doc.State = state
	}
	return nil
}

// Document returns a copy of the record for an id.
func (r *Registry) Document(id interfaces.DocumentID) (interfaces.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return interfaces.Document{}, interfaces.ErrUnknownDocument
	}
	return r.copyLocked(doc), nil
}

// DocumentsByBeneficiary returns all documents issued for an address.
func (r *Registry) DocumentsByBeneficiary(addr interfaces.Address) []interfaces.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []interfaces.Document
	for _, id := range r.order {
		if r.docs[id].Beneficiary == addr {
			out = append(out, r.copyLocked(r.docs[id]))
		}
	}
	return out
}

// DocumentsByState returns all documents currently in the given state.
func (r *Registry) DocumentsByState(state interfaces.DocumentState) []interfaces.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []interfaces.Document
	for _, id := range r.order {
		if r.docs[id].State == state {
			out = append(out, r.copyLocked(r.docs[id]))
		}
	}
	return out
}

func (r *Registry) copyLocked(doc *interfaces.Document) interfaces.Document {
	out := *doc
	out.RequiredRoles = append([]interfaces.RoleID(nil), doc.RequiredRoles...)
	return out
}

// Events returns the emitted event log.
func (r *Registry) Events() []events.Event {
	return r.log.Events()
}
