package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

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

type relayCall struct {
	caller interfaces.Address
	doc    interfaces.DocumentID
	signer interfaces.Address
	role   interfaces.RoleID
}

// stubRelay records relayed signatures and returns a configurable error.
type stubRelay struct {
	calls []relayCall
	err   error
}

func (s *stubRelay) AddSignatureForSigner(caller interfaces.Address, doc interfaces.DocumentID, signer interfaces.Address, role interfaces.RoleID, contentHash interfaces.ContentID, deadline time.Time, sig interfaces.Signature) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, relayCall{caller: caller, doc: doc, signer: signer, role: role})
	return nil
}

type MockDocumentRegistry struct {
	mock.Mock
}

func (m *MockDocumentRegistry) UpdateDocumentState(caller interfaces.Address, id interfaces.DocumentID) error {
	args := m.Called(caller, id)
	return args.Error(0)
}

func (m *MockDocumentRegistry) Document(id interfaces.DocumentID) (interfaces.Document, error) {
	args := m.Called(id)
	return args.Get(0).(interfaces.Document), args.Error(1)
}

type engineFixture struct {
	engine     *Engine
	grants     grantTable
	relay      *stubRelay
	documents  *MockDocumentRegistry
	admin      interfaces.Address
	signerA    interfaces.Address
	signerB    interfaces.Address
	roleA      interfaces.RoleID
	roleB      interfaces.RoleID
	engineAddr interfaces.Address
	now        time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	admin, err := interfaces.NewAddressFromHex("00112233445566778899aabbccddeeff00112233")
	require.NoError(t, err)
	signerA, err := interfaces.NewAddressFromHex("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	signerB, err := interfaces.NewAddressFromHex("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, err)
	engineAddr, err := interfaces.NewAddressFromHex("2222222222222222222222222222222222222222")
	require.NoError(t, err)

	roleA := interfaces.DeriveRoleID("FIRST_APPROVER", time.Unix(0, 0), admin)
	roleB := interfaces.DeriveRoleID("SECOND_APPROVER", time.Unix(0, 0), admin)

	grants := grantTable{}
	grants.grant(admin, interfaces.WorkflowAdminRole)
	grants.grant(admin, interfaces.CreatorRole)
	grants.grant(signerA, roleA)
	grants.grant(signerB, roleB)

	relay := &stubRelay{}
	documents := &MockDocumentRegistry{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	engine := NewEngine(engineAddr, grants, relay, documents, WithClock(func() time.Time { return now }))

	return &engineFixture{
		engine:     engine,
		grants:     grants,
		relay:      relay,
		documents:  documents,
		admin:      admin,
		signerA:    signerA,
		signerB:    signerB,
		roleA:      roleA,
		roleB:      roleB,
		engineAddr: engineAddr,
		now:        now,
	}
}

// registerDocument makes the mocked registry report the document as known.
func (f *engineFixture) registerDocument(doc interfaces.DocumentID) {
	f.documents.On("Document", doc).Return(interfaces.Document{ID: doc}, nil)
}

func (f *engineFixture) createTwoStepTemplate(t *testing.T, name string) {
	t.Helper()
	deadline := f.now.Add(24 * time.Hour)
	err := f.engine.CreateWorkflowTemplate(f.admin, name,
		[]interfaces.RoleID{f.roleB, f.roleA},
		[]bool{true, true},
		[]int{2, 1},
		[]time.Time{deadline, deadline},
	)
	require.NoError(t, err)
}

func TestCreateWorkflowTemplate(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")

	// Steps come back sorted by their order field
	steps, err := f.engine.Template("diploma")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, f.roleA, steps[0].Role)
	require.Equal(t, f.roleB, steps[1].Role)

	_, err = f.engine.Template("unknown")
	require.ErrorIs(t, err, interfaces.ErrUnknownTemplate)
}

func TestCreateWorkflowTemplateValidation(t *testing.T) {
	f := newEngineFixture(t)
	deadline := f.now.Add(time.Hour)

	err := f.engine.CreateWorkflowTemplate(f.signerA, "diploma", []interfaces.RoleID{f.roleA}, []bool{true}, []int{1}, []time.Time{deadline})
	require.ErrorIs(t, err, interfaces.ErrUnauthorized)

	err = f.engine.CreateWorkflowTemplate(f.admin, "", []interfaces.RoleID{f.roleA}, []bool{true}, []int{1}, []time.Time{deadline})
	require.ErrorIs(t, err, interfaces.ErrPrecondition)

	err = f.engine.CreateWorkflowTemplate(f.admin, "diploma", []interfaces.RoleID{f.roleA, f.roleB}, []bool{true}, []int{1}, []time.Time{deadline})
	require.ErrorIs(t, err, interfaces.ErrPrecondition)
}

func TestCreateWorkflowTemplateReplacedWholesale(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")

	deadline := f.now.Add(time.Hour)
	err := f.engine.CreateWorkflowTemplate(f.admin, "diploma", []interfaces.RoleID{f.roleA}, []bool{true}, []int{1}, []time.Time{deadline})
	require.NoError(t, err)

	steps, err := f.engine.Template("diploma")
	require.NoError(t, err)
	require.Len(t, steps, 1)
}

func TestCreateDocumentWorkflow(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")
	f.registerDocument(1)
	f.registerDocument(2)

	require.NoError(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "diploma"))

	wf, err := f.engine.Workflow(1)
	require.NoError(t, err)
	require.Equal(t, "diploma", wf.Template)
	require.Len(t, wf.Steps, 2)
	require.Zero(t, wf.CurrentStep)
	require.False(t, wf.Completed)

	// One instance per document
	require.ErrorIs(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "diploma"), interfaces.ErrWorkflowExists)

	require.ErrorIs(t, f.engine.CreateDocumentWorkflow(f.admin, 0, "diploma"), interfaces.ErrPrecondition)
	require.ErrorIs(t, f.engine.CreateDocumentWorkflow(f.admin, 2, "unknown"), interfaces.ErrPrecondition)
	require.ErrorIs(t, f.engine.CreateDocumentWorkflow(f.signerA, 2, "diploma"), interfaces.ErrUnauthorized)
}

func TestCreateDocumentWorkflowUnknownDocument(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")

	f.documents.On("Document", interfaces.DocumentID(9)).Return(interfaces.Document{}, interfaces.ErrUnknownDocument)

	err := f.engine.CreateDocumentWorkflow(f.admin, 9, "diploma")
	require.ErrorIs(t, err, interfaces.ErrUnknownDocument)

	// No instance was bound
	_, err = f.engine.Workflow(9)
	require.ErrorIs(t, err, interfaces.ErrUnknownWorkflow)
}

func TestCompleteWorkflowStepInOrder(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")
	f.registerDocument(1)
	require.NoError(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "diploma"))

	contentHash := interfaces.ComputeContentID([]byte("body"))
	deadline := f.now.Add(time.Hour)
	sig := make(interfaces.Signature, interfaces.SignatureLength)

	// The second step cannot complete before the first
	err := f.engine.CompleteWorkflowStep(f.admin, 1, 1, f.signerB, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrOutOfOrderStep)

	f.documents.On("UpdateDocumentState", f.engineAddr, interfaces.DocumentID(1)).Return(nil).Once()

	require.NoError(t, f.engine.CompleteWorkflowStep(f.admin, 1, 0, f.signerA, contentHash, deadline, sig))
	require.NoError(t, f.engine.CompleteWorkflowStep(f.admin, 1, 1, f.signerB, contentHash, deadline, sig))

	// Both signatures were relayed under the engine's own identity
	require.Len(t, f.relay.calls, 2)
	require.Equal(t, f.engineAddr, f.relay.calls[0].caller)
	require.Equal(t, f.signerA, f.relay.calls[0].signer)
	require.Equal(t, f.signerB, f.relay.calls[1].signer)

	wf, err := f.engine.Workflow(1)
	require.NoError(t, err)
	require.True(t, wf.Completed)
	require.True(t, wf.Steps[0].Completed)
	require.Equal(t, f.signerA, wf.Steps[0].CompletedBy)

	f.documents.AssertExpectations(t)
}

func TestCompleteWorkflowStepRejections(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")
	f.registerDocument(1)
	require.NoError(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "diploma"))

	contentHash := interfaces.ComputeContentID([]byte("body"))
	deadline := f.now.Add(time.Hour)
	sig := make(interfaces.Signature, interfaces.SignatureLength)

	err := f.engine.CompleteWorkflowStep(f.admin, 2, 0, f.signerA, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrUnknownWorkflow)

	err = f.engine.CompleteWorkflowStep(f.admin, 1, 5, f.signerA, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrPrecondition)

	// The signer must hold the step's role
	err = f.engine.CompleteWorkflowStep(f.admin, 1, 0, f.signerB, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrInvalidRole)

	// A ledger rejection leaves the step incomplete
	f.relay.err = interfaces.ErrInvalidSignature
	err = f.engine.CompleteWorkflowStep(f.admin, 1, 0, f.signerA, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrInvalidSignature)

	wf, err := f.engine.Workflow(1)
	require.NoError(t, err)
	require.Zero(t, wf.CurrentStep)
	require.False(t, wf.Steps[0].Completed)
}

func TestCompleteWorkflowStepStateUpdateRefused(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")
	f.registerDocument(1)
	require.NoError(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "diploma"))

	contentHash := interfaces.ComputeContentID([]byte("body"))
	deadline := f.now.Add(time.Hour)
	sig := make(interfaces.Signature, interfaces.SignatureLength)

	require.NoError(t, f.engine.CompleteWorkflowStep(f.admin, 1, 0, f.signerA, contentHash, deadline, sig))

	// The registry refusing the final recomputation must not leave the
	// instance half completed
	f.documents.On("UpdateDocumentState", f.engineAddr, interfaces.DocumentID(1)).Return(interfaces.ErrReentrantCall).Once()

	err := f.engine.CompleteWorkflowStep(f.admin, 1, 1, f.signerB, contentHash, deadline, sig)
	require.ErrorIs(t, err, interfaces.ErrReentrantCall)

	wf, err := f.engine.Workflow(1)
	require.NoError(t, err)
	require.False(t, wf.Completed)
	require.Equal(t, 1, wf.CurrentStep)
	require.False(t, wf.Steps[1].Completed)

	f.documents.AssertExpectations(t)
}

func TestCompleteWorkflowStepDeadline(t *testing.T) {
	f := newEngineFixture(t)

	// Template whose first step expired an hour ago
	err := f.engine.CreateWorkflowTemplate(f.admin, "expired",
		[]interfaces.RoleID{f.roleA},
		[]bool{true},
		[]int{1},
		[]time.Time{f.now.Add(-time.Hour)},
	)
	require.NoError(t, err)
	f.registerDocument(1)
	require.NoError(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "expired"))

	sig := make(interfaces.Signature, interfaces.SignatureLength)
	err = f.engine.CompleteWorkflowStep(f.admin, 1, 0, f.signerA, interfaces.ContentID{}, f.now.Add(time.Hour), sig)
	require.ErrorIs(t, err, interfaces.ErrDeadlinePassed)
}

func TestCurrentStep(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")
	f.registerDocument(1)
	require.NoError(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "diploma"))

	step, err := f.engine.CurrentStep(1)
	require.NoError(t, err)
	require.Equal(t, f.roleA, step.Role)
	require.False(t, step.Completed)

	contentHash := interfaces.ComputeContentID([]byte("body"))
	deadline := f.now.Add(time.Hour)
	sig := make(interfaces.Signature, interfaces.SignatureLength)
	f.documents.On("UpdateDocumentState", f.engineAddr, interfaces.DocumentID(1)).Return(nil).Once()

	require.NoError(t, f.engine.CompleteWorkflowStep(f.admin, 1, 0, f.signerA, contentHash, deadline, sig))
	require.NoError(t, f.engine.CompleteWorkflowStep(f.admin, 1, 1, f.signerB, contentHash, deadline, sig))

	// Past the last step a synthetic completed sentinel is reported
	step, err = f.engine.CurrentStep(1)
	require.NoError(t, err)
	require.True(t, step.Completed)
	require.Equal(t, 2, step.Order)

	_, err = f.engine.CurrentStep(9)
	require.ErrorIs(t, err, interfaces.ErrUnknownWorkflow)
}

func TestCompleteWorkflowStepRejectsReentry(t *testing.T) {
	f := newEngineFixture(t)
	f.createTwoStepTemplate(t, "diploma")
	f.registerDocument(1)
	require.NoError(t, f.engine.CreateDocumentWorkflow(f.admin, 1, "diploma"))

	f.engine.busy.Store(true)
	defer f.engine.busy.Store(false)

	sig := make(interfaces.Signature, interfaces.SignatureLength)
	err := f.engine.CompleteWorkflowStep(f.admin, 1, 0, f.signerA, interfaces.ContentID{}, f.now.Add(time.Hour), sig)
	require.ErrorIs(t, err, interfaces.ErrReentrantCall)
}
