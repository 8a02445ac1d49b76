// Package workflow implements the ordered approval workflow engine. It owns
// step templates and per-document workflow instances and drives step
// completion strictly in sequence, delegating cryptographic acceptance to
// the signature ledger.
package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/instidoc/institution-registry-backend/events"
	"github.com/instidoc/institution-registry-backend/interfaces"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns workflow templates and instances. It calls into the
// signature ledger (to record) and the document registry (to trigger state
// recomputation); neither calls back, the dependency chain has no cycles.
type Engine struct {
	mu   sync.RWMutex
	busy atomic.Bool

	// instanceAddr is the engine's own capability address, used as the
	// caller identity when relaying into the ledger and document registry.
	instanceAddr interfaces.Address
	authority    interfaces.CapabilityChecker
	ledger       interfaces.SignatureRelay
	documents    interfaces.WorkflowDocuments
	now          func() time.Time

	templates map[string][]interfaces.WorkflowStep
	instances map[interfaces.DocumentID]*interfaces.Workflow

	log *events.Log
}

var _ interfaces.WorkflowEngine = (*Engine)(nil)

// NewEngine creates a workflow engine bound to its collaborators.
func NewEngine(instanceAddr interfaces.Address, authority interfaces.CapabilityChecker, ledger interfaces.SignatureRelay, documents interfaces.WorkflowDocuments, opts ...Option) *Engine {
	e := &Engine{
		instanceAddr: instanceAddr,
		authority:    authority,
		ledger:       ledger,
		documents:    documents,
		now:          time.Now,
		templates:    make(map[string][]interfaces.WorkflowStep),
		instances:    make(map[interfaces.DocumentID]*interfaces.Workflow),
		log:          events.NewLog(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateWorkflowTemplate defines or redefines a named template. Restricted
// to the workflow-admin capability. The input arrays must have equal
// length. An existing template of the same name is replaced wholesale.
func (e *Engine) CreateWorkflowTemplate(caller interfaces.Address, name string, roles []interfaces.RoleID, required []bool, order []int, deadlines []time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.authority.HasRole(caller, interfaces.WorkflowAdminRole) {
		return fmt.Errorf("%w: workflow admin", interfaces.ErrUnauthorized)
	}
	if name == "" {
		return fmt.Errorf("%w: empty template name", interfaces.ErrPrecondition)
	}
	if len(roles) != len(required) || len(roles) != len(order) || len(roles) != len(deadlines) {
		return fmt.Errorf("%w: step arrays must have equal length", interfaces.ErrPrecondition)
	}

	steps := make([]interfaces.WorkflowStep, len(roles))
	for i := range roles {
		steps[i] = interfaces.WorkflowStep{
			Role:     roles[i],
			Required: required[i],
			Order:    order[i],
			Deadline: deadlines[i],
		}
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	delete(e.templates, name)
	e.templates[name] = steps

	e.log.Emit("template_created", e.now(), map[string]string{
		"template": name,
		"steps":    strconv.Itoa(len(steps)),
	})
	return nil
}

// CreateDocumentWorkflow attaches a workflow instance to a document by deep
// copying the named template's steps. Restricted to the document-creator
// capability. The document must already be registered. At most one instance
// per document id; the zero document id is the "no instance" sentinel and is
// never bound.
func (e *Engine) CreateDocumentWorkflow(caller interfaces.Address, doc interfaces.DocumentID, template string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.authority.HasRole(caller, interfaces.CreatorRole) {
		return fmt.Errorf("%w: document creator", interfaces.ErrUnauthorized)
	}
	if doc == 0 {
		return fmt.Errorf("%w: zero document id", interfaces.ErrPrecondition)
	}
	if _, err := e.documents.Document(doc); err != nil {
		return err
	}
	steps, ok := e.templates[template]
	if !ok || len(steps) == 0 {
		return fmt.Errorf("%w: template %q has no steps", interfaces.ErrPrecondition, template)
	}
	if _, exists := e.instances[doc]; exists {
		return interfaces.ErrWorkflowExists
	}

	now := e.now()
	e.instances[doc] = &interfaces.Workflow{
		DocumentID: doc,
		Template:   template,
		Steps:      append([]interfaces.WorkflowStep(nil), steps...),
		CreatedAt:  now,
	}

	e.log.Emit("workflow_created", now, map[string]string{
		"document": strconv.FormatUint(uint64(doc), 10),
		"template": template,
	})
	return nil
}

// CompleteWorkflowStep completes the step at stepIndex with a signature the
// given signer produced off-band. Steps complete strictly in order; the
// step's own deadline and the signer's role are enforced before the
// signature is relayed to the ledger, where the usual uniqueness and
// cryptographic checks apply. Completing the final step marks the instance
// completed and triggers document state recomputation.
func (e *Engine) CompleteWorkflowStep(caller interfaces.Address, doc interfaces.DocumentID, stepIndex int, signer interfaces.Address, contentHash interfaces.ContentID, deadline time.Time, sig interfaces.Signature) error {
	// Completing a step calls out to the ledger and the document registry
	// before all bookkeeping is finished; nested re-entry is rejected.
	if !e.busy.CompareAndSwap(false, true) {
		return interfaces.ErrReentrantCall
	}
	defer e.busy.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	instance, ok := e.instances[doc]
	if !ok {
		return interfaces.ErrUnknownWorkflow
	}
	if stepIndex < 0 || stepIndex >= len(instance.Steps) {
		return fmt.Errorf("%w: step index out of range", interfaces.ErrPrecondition)
	}
	if stepIndex != instance.CurrentStep {
		return interfaces.ErrOutOfOrderStep
	}

	step := &instance.Steps[stepIndex]
	if step.Completed {
		return interfaces.ErrStepAlreadyCompleted
	}
	now := e.now()
	if now.After(step.Deadline) {
		return fmt.Errorf("%w: step deadline", interfaces.ErrDeadlinePassed)
	}
	if !e.authority.HasRole(signer, step.Role) {
		return interfaces.ErrInvalidRole
	}

	if err := e.ledger.AddSignatureForSigner(e.instanceAddr, doc, signer, step.Role, contentHash, deadline, sig); err != nil {
		return err
	}

	// State recomputation reads only the ledger, which already holds the
	// relayed signature; the instance is committed only after it succeeds.
	final := stepIndex == len(instance.Steps)-1
	if final {
		if err := e.documents.UpdateDocumentState(e.instanceAddr, doc); err != nil {
			return fmt.Errorf("document state update failed: %w", err)
		}
	}

	step.Completed = true
	step.CompletedBy = signer
	step.CompletedAt = now
	instance.CurrentStep++

	e.log.Emit("step_completed", now, map[string]string{
		"document":  strconv.FormatUint(uint64(doc), 10),
		"step":      strconv.Itoa(stepIndex),
		"signer":    signer.String(),
		"submitter": caller.String(),
	})

	if final {
		instance.Completed = true
		e.log.Emit("workflow_completed", now, map[string]string{
			"document": strconv.FormatUint(uint64(doc), 10),
		})
	}
	return nil
}

// Workflow returns a copy of the instance bound to the document.
func (e *Engine) Workflow(doc interfaces.DocumentID) (interfaces.Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	instance, ok := e.instances[doc]
	if !ok {
		return interfaces.Workflow{}, interfaces.ErrUnknownWorkflow
	}
	out := *instance
	out.Steps = append([]interfaces.WorkflowStep(nil), instance.Steps...)
	return out, nil
}

// Template returns a copy of the named template's steps.
func (e *Engine) Template(name string) ([]interfaces.WorkflowStep, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	steps, ok := e.templates[name]
	if !ok {
		return nil, interfaces.ErrUnknownTemplate
	}
	return append([]interfaces.WorkflowStep(nil), steps...), nil
}

// CurrentStep returns the pending step of the document's workflow. Once the
// cursor has passed the last step a synthetic all-completed sentinel step
// is returned instead of an out-of-range failure.
func (e *Engine) CurrentStep(doc interfaces.DocumentID) (interfaces.WorkflowStep, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	instance, ok := e.instances[doc]
	if !ok {
		return interfaces.WorkflowStep{}, interfaces.ErrUnknownWorkflow
	}
	if instance.CurrentStep >= len(instance.Steps) {
		return interfaces.WorkflowStep{
			Order:     len(instance.Steps),
			Completed: true,
		}, nil
	}
	return instance.Steps[instance.CurrentStep], nil
}

// Events returns the emitted event log.
func (e *Engine) Events() []events.Event {
	return e.log.Events()
}
