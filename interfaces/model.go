package interfaces

import "time"

// Role is a catalog entry. Roles are never deleted, only deactivated, so
// lookups by id stay valid forever.
type Role struct {
	ID          RoleID
	Name        string
	Description string
	Active      bool
	Creator     Address
	CreatedAt   time.Time
}

// Member is an address-keyed membership record. Roles holds the currently
// assigned role ids; revocation uses swap-and-pop, so the relative order of
// the remaining ids is not preserved.
type Member struct {
	Address    Address
	Name       string
	Department string
	Active     bool
	JoinedAt   time.Time
	Roles      []RoleID
}

// Department is a name-keyed record with an append-only member list.
type Department struct {
	Name    string
	Head    Address
	Active  bool
	Members []Address
}

// DocumentState is the lifecycle state of a registered document.
type DocumentState int

const (
	StateDraft DocumentState = iota
	StatePendingSignatures
	StatePartiallySigned
	StateCompleted
	StateCancelled
)

// String returns the state label used in certificate metadata.
func (s DocumentState) String() string {
	switch s {
	case StateDraft:
		return "Draft"
	case StatePendingSignatures:
		return "Pending Signatures"
	case StatePartiallySigned:
		return "Partially Signed"
	case StateCompleted:
		return "Completed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Document is the registry record for one certificate.
type Document struct {
	ID                 DocumentID
	Title              string
	Description        string
	ContentHash        ContentID
	ContentRef         string
	State              DocumentState
	CreatedAt          time.Time
	Deadline           time.Time
	Creator            Address
	Beneficiary        Address
	RequiredRoles      []RoleID
	RequiredSignatures int
	DocumentType       string
}

// SignatureRecord is one accepted signature in the append-only per-document list.
type SignatureRecord struct {
	DocumentID  DocumentID
	Signer      Address
	Role        RoleID
	SignedAt    time.Time
	ContentHash ContentID
	Deadline    time.Time
	Valid       bool
}

// WorkflowStep is a single approval step. In a template the completion
// fields are zero; in an instance they record who completed it and when.
type WorkflowStep struct {
	Role        RoleID
	Required    bool
	Order       int
	Deadline    time.Time
	Completed   bool
	CompletedBy Address
	CompletedAt time.Time
}

// Workflow is a per-document approval instance. Steps are a deep copy of
// the template taken at creation time; later template edits never affect it.
type Workflow struct {
	DocumentID  DocumentID
	Template    string
	Steps       []WorkflowStep
	CurrentStep int
	Completed   bool
	CreatedAt   time.Time
}
