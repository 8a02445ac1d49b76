package interfaces

import "time"

// CapabilityChecker answers "does address X currently hold role R". It is
// the read-only surface every collaborator uses for authorization.
type CapabilityChecker interface {
	HasRole(addr Address, role RoleID) bool
}

// MembershipChecker reports active institution membership.
type MembershipChecker interface {
	IsActiveMember(addr Address) bool
}

// AuthorityView is the read-only authority surface the other components consume.
type AuthorityView interface {
	CapabilityChecker
	MembershipChecker
}

// AuthorityRegistry owns roles, members and departments.
type AuthorityRegistry interface {
	AuthorityView

	CreateRole(caller Address, name, description string) (RoleID, error)
	DeactivateRole(caller Address, id RoleID) error
	AddMember(caller, addr Address, name, department string, roles []RoleID) error
	CreateDepartment(caller Address, name string, head Address) error
	GrantMemberRole(caller, addr Address, role RoleID) error
	RevokeMemberRole(caller, addr Address, role RoleID) error

	Role(id RoleID) (Role, error)
	AllRoles() []Role
	ActiveRoles() []Role
	RolesByCreator(creator Address) []Role
	Member(addr Address) (Member, error)
	MemberRoles(addr Address) ([]RoleID, error)
	Members() []Member
	Department(name string) (Department, error)
	DepartmentMembers(name string) ([]Address, error)
	Departments() []Department
}

// SignatureRelay is the ledger surface granted to the workflow engine. The
// relay submits a third party's signature without impersonating them; the
// cryptographic recovery still binds the claimed signer.
type SignatureRelay interface {
	AddSignatureForSigner(caller Address, doc DocumentID, signer Address, role RoleID, contentHash ContentID, deadline time.Time, sig Signature) error
}

// SignatureCounter is the ledger surface the document registry reads when
// recomputing lifecycle state.
type SignatureCounter interface {
	SignatureCount(doc DocumentID) int
}

// SignatureLedger verifies and records typed document signatures.
type SignatureLedger interface {
	SignatureRelay
	SignatureCounter

	AddSignature(caller Address, doc DocumentID, role RoleID, contentHash ContentID, deadline time.Time, sig Signature) error
	VerifyExternalSignature(doc DocumentID, signer Address, role RoleID, contentHash ContentID, deadline time.Time, sig Signature) (bool, error)
	DocumentSignatures(doc DocumentID) []SignatureRecord
	RoleSigned(doc DocumentID, role RoleID) bool
	HasSigned(doc DocumentID, signer Address) bool
}

// DocumentStateUpdater triggers lifecycle recomputation for a document.
type DocumentStateUpdater interface {
	UpdateDocumentState(caller Address, id DocumentID) error
}

// WorkflowDocuments is the registry surface granted to the workflow engine:
// existence checks when binding an instance and state recomputation when the
// instance completes.
type WorkflowDocuments interface {
	DocumentStateUpdater

	Document(id DocumentID) (Document, error)
}

// WorkflowEngine owns workflow templates and per-document instances.
type WorkflowEngine interface {
	CreateWorkflowTemplate(caller Address, name string, roles []RoleID, required []bool, order []int, deadlines []time.Time) error
	CreateDocumentWorkflow(caller Address, doc DocumentID, template string) error
	CompleteWorkflowStep(caller Address, doc DocumentID, stepIndex int, signer Address, contentHash ContentID, deadline time.Time, sig Signature) error

	Workflow(doc DocumentID) (Workflow, error)
	Template(name string) ([]WorkflowStep, error)
	CurrentStep(doc DocumentID) (WorkflowStep, error)
}

// DocumentRegistry owns document records and the soulbound certificate token.
type DocumentRegistry interface {
	DocumentStateUpdater

	CreateDocument(caller, beneficiary Address, title, description, contentRef string, contentHash ContentID, deadline time.Time, requiredRoles []RoleID, docType string) (DocumentID, error)
	Transfer(caller, from, to Address, id DocumentID) error
	Burn(caller Address, id DocumentID) error

	Document(id DocumentID) (Document, error)
	DocumentsByBeneficiary(addr Address) []Document
	DocumentsByState(state DocumentState) []Document
	OwnerOf(id DocumentID) (Address, error)
	TokenMetadata(id DocumentID) (string, error)
}
