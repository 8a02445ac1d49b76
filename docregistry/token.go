package docregistry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

// mintLocked assigns the certificate for a freshly created document to the
// beneficiary. The mint is the only transfer from the zero address.
func (r *Registry) mintLocked(to interfaces.Address, id interfaces.DocumentID, now time.Time) {
	r.owners[id] = to
	r.log.Emit("certificate_minted", now, map[string]string{
		"document": strconv.FormatUint(uint64(id), 10),
		"to":       to.String(),
	})
}

// Transfer rejects every transfer between two non-zero addresses. The
// certificate is bound to the beneficiary for life; only minting (from
// zero) and burning (to zero) move it, and those go through CreateDocument
// and Burn.
func (r *Registry) Transfer(caller, from, to interfaces.Address, id interfaces.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[id]
	if !ok {
		return interfaces.ErrUnknownDocument
	}
	if !from.Equal(owner) {
		return fmt.Errorf("%w: not the certificate holder", interfaces.ErrUnauthorized)
	}
	if !caller.Equal(owner) && !r.authority.HasRole(caller, interfaces.AdminRole) {
		return fmt.Errorf("%w: only the holder or an admin may move the certificate", interfaces.ErrUnauthorized)
	}
	if !from.IsZero() && !to.IsZero() {
		return interfaces.ErrNonTransferable
	}
	if to.IsZero() {
		return r.burnLocked(caller, id)
	}
	return fmt.Errorf("%w: transfer from zero address", interfaces.ErrPrecondition)
}

// Burn destroys the certificate token. Allowed for the current holder and
// for institution admins. The document record itself is kept.
func (r *Registry) Burn(caller interfaces.Address, id interfaces.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[id]
	if !ok {
		return interfaces.ErrUnknownDocument
	}
	if !caller.Equal(owner) && !r.authority.HasRole(caller, interfaces.AdminRole) {
		return fmt.Errorf("%w: only the holder or an admin may burn", interfaces.ErrUnauthorized)
	}
	return r.burnLocked(caller, id)
}

func (r *Registry) burnLocked(caller interfaces.Address, id interfaces.DocumentID) error {
	owner := r.owners[id]
	delete(r.owners, id)
	r.log.Emit("certificate_burned", r.now(), map[string]string{
		"document": strconv.FormatUint(uint64(id), 10),
		"holder":   owner.String(),
		"by":       caller.String(),
	})
	return nil
}

// OwnerOf returns the current certificate holder.
func (r *Registry) OwnerOf(id interfaces.DocumentID) (interfaces.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[id]
	if !ok {
		return interfaces.Address{}, interfaces.ErrUnknownDocument
	}
	return owner, nil
}
