package httpserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/instidoc/institution-registry-backend/factory"
	"github.com/instidoc/institution-registry-backend/interfaces"
	"github.com/instidoc/institution-registry-backend/metrics"
)

// Header constants used in HTTP requests and responses.
const (
	// CallerHeader carries the hex address the mutation is attributed to.
	// The server trusts the fronting proxy to have authenticated it;
	// capability checks against the address still apply on every call.
	CallerHeader = "X-Institution-Caller"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler processes HTTP requests for one institution deployment. It maps
// request bodies onto registry operations and registry errors onto HTTP
// status codes; all authorization stays inside the registry components.
type Handler struct {
	inst  *factory.Institution
	store interfaces.ContentStore
	log   *slog.Logger
}

// NewHandler creates an HTTP request handler over a deployed institution
// and its document content store.
func NewHandler(inst *factory.Institution, store interfaces.ContentStore, log *slog.Logger) *Handler {
	return &Handler{
		inst:  inst,
		store: store,
		log:   log,
	}
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, interfaces.ErrUnknownRole),
		errors.Is(err, interfaces.ErrUnknownMember),
		errors.Is(err, interfaces.ErrUnknownDepartment),
		errors.Is(err, interfaces.ErrUnknownDocument),
		errors.Is(err, interfaces.ErrUnknownTemplate),
		errors.Is(err, interfaces.ErrUnknownWorkflow),
		errors.Is(err, interfaces.ErrContentNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, interfaces.ErrAlreadySigned):
		return http.StatusConflict, "already_signed"
	case errors.Is(err, interfaces.ErrStepAlreadyCompleted),
		errors.Is(err, interfaces.ErrOutOfOrderStep),
		errors.Is(err, interfaces.ErrWorkflowExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, interfaces.ErrDeadlinePassed):
		return http.StatusGone, "deadline_passed"
	case errors.Is(err, interfaces.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, interfaces.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, interfaces.ErrReentrantCall):
		return http.StatusServiceUnavailable, "busy"
	case errors.Is(err, interfaces.ErrPrecondition):
		return http.StatusBadRequest, "precondition"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, _ := classifyError(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err)
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) caller(r *http.Request) (interfaces.Address, error) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		return interfaces.Address{}, fmt.Errorf("missing %s header", CallerHeader)
	}
	return interfaces.NewAddressFromHex(raw)
}

func (h *Handler) decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func documentIDFromPath(r *http.Request) (interfaces.DocumentID, error) {
	raw := r.PathValue("document_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid document id %q", raw)
	}
	return interfaces.DocumentID(id), nil
}

// --- Authority administration ---

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleCreateRole registers a custom role.
//
// URL format: POST /api/admin/roles
func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req createRoleRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.inst.Authority.CreateRole(caller, req.Name, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"role_id": id.String()})
}

// HandleDeactivateRole deactivates a role by id.
//
// URL format: POST /api/admin/roles/{role_id}/deactivate
func (h *Handler) HandleDeactivateRole(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := interfaces.NewRoleIDFromHex(r.PathValue("role_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.inst.Authority.DeactivateRole(caller, id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type addMemberRequest struct {
	Address    string   `json:"address"`
	Name       string   `json:"name"`
	Department string   `json:"department,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// HandleAddMember registers a member with an optional initial role set.
//
// URL format: POST /api/admin/members
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req addMemberRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	addr, err := interfaces.NewAddressFromHex(req.Address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	roles := make([]interfaces.RoleID, 0, len(req.Roles))
	for _, raw := range req.Roles {
		role, err := interfaces.NewRoleIDFromHex(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		roles = append(roles, role)
	}

	if err := h.inst.Authority.AddMember(caller, addr, req.Name, req.Department, roles); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

type grantRoleRequest struct {
	RoleID string `json:"role_id"`
}

// HandleGrantRole grants a role to an existing member.
//
// URL format: POST /api/admin/members/{address}/roles
func (h *Handler) HandleGrantRole(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := interfaces.NewAddressFromHex(r.PathValue("address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req grantRoleRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	role, err := interfaces.NewRoleIDFromHex(req.RoleID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.inst.Authority.GrantMemberRole(caller, addr, role); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// HandleRevokeRole revokes a role from a member.
//
// URL format: DELETE /api/admin/members/{address}/roles/{role_id}
func (h *Handler) HandleRevokeRole(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := interfaces.NewAddressFromHex(r.PathValue("address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	role, err := interfaces.NewRoleIDFromHex(r.PathValue("role_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.inst.Authority.RevokeMemberRole(caller, addr, role); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type createDepartmentRequest struct {
	Name string `json:"name"`
	Head string `json:"head,omitempty"`
}

// HandleCreateDepartment registers a department.
//
// URL format: POST /api/admin/departments
func (h *Handler) HandleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req createDepartmentRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var head interfaces.Address
	if req.Head != "" {
		head, err = interfaces.NewAddressFromHex(req.Head)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.inst.Authority.CreateDepartment(caller, req.Name, head); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// --- Document lifecycle ---

type createDocumentRequest struct {
	Beneficiary   string   `json:"beneficiary"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Content       string   `json:"content,omitempty"`
	ContentRef    string   `json:"content_ref,omitempty"`
	Deadline      string   `json:"deadline"`
	RequiredRoles []string `json:"required_roles"`
	DocumentType  string   `json:"document_type"`
}

type createDocumentResponse struct {
	DocumentID  uint64 `json:"document_id"`
	ContentHash string `json:"content_hash"`
	ContentRef  string `json:"content_ref,omitempty"`
}

// HandleCreateDocument stores the document body in the content store,
// registers the document and mints its certificate.
//
// URL format: POST /api/documents
func (h *Handler) HandleCreateDocument(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req createDocumentRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	beneficiary, err := interfaces.NewAddressFromHex(req.Beneficiary)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid deadline: %v", err), http.StatusBadRequest)
		return
	}
	roles := make([]interfaces.RoleID, 0, len(req.RequiredRoles))
	for _, raw := range req.RequiredRoles {
		role, err := interfaces.NewRoleIDFromHex(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		roles = append(roles, role)
	}

	var contentHash interfaces.ContentID
	contentRef := req.ContentRef
	if req.Content != "" {
		data := []byte(req.Content)
		id, err := h.store.Store(r.Context(), data, interfaces.DocumentContent)
		if err != nil {
			h.log.Error("Failed to store document content", "err", err)
			http.Error(w, "failed to store document content", http.StatusBadGateway)
			return
		}
		contentHash = id
		if contentRef == "" {
			contentRef = h.store.LocationURI()
		}
	}

	id, err := h.inst.Documents.CreateDocument(caller, beneficiary, req.Title, req.Description, contentRef, contentHash, deadline, roles, req.DocumentType)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metrics.DocumentsCreated.Inc()
	h.writeJSON(w, http.StatusCreated, createDocumentResponse{
		DocumentID:  uint64(id),
		ContentHash: contentHash.String(),
		ContentRef:  contentRef,
	})
}

// HandleUpdateDocumentState triggers a lifecycle recomputation.
//
// URL format: POST /api/documents/{document_id}/state
func (h *Handler) HandleUpdateDocumentState(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.inst.Documents.UpdateDocumentState(caller, id); err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.inst.Documents.Document(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"state": doc.State.String()})
}

// HandleBurn destroys a certificate token.
//
// URL format: POST /api/documents/{document_id}/burn
func (h *Handler) HandleBurn(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.inst.Documents.Burn(caller, id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HandleTransfer attempts a certificate transfer. Certificates are bound
// to their beneficiary, so any transfer between two member addresses fails.
//
// URL format: POST /api/documents/{document_id}/transfer
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req transferRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var from, to interfaces.Address
	if req.From != "" {
		from, err = interfaces.NewAddressFromHex(req.From)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.To != "" {
		to, err = interfaces.NewAddressFromHex(req.To)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.inst.Documents.Transfer(caller, from, to, id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

// --- Signatures ---

type addSignatureRequest struct {
	RoleID      string `json:"role_id"`
	ContentHash string `json:"content_hash"`
	Deadline    string `json:"deadline"`
	Signature   string `json:"signature"`
}

// HandleAddSignature records the caller's approval signature. The
// signature must recover to the caller address under the institution's
// signing domain.
//
// URL format: POST /api/documents/{document_id}/signatures
func (h *Handler) HandleAddSignature(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req addSignatureRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	role, contentHash, deadline, sig, err := parseSignatureFields(req.RoleID, req.ContentHash, req.Deadline, req.Signature)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.inst.Ledger.AddSignature(caller, id, role, contentHash, deadline, sig); err != nil {
		_, reason := classifyError(err)
		metrics.SignaturesRejected.WithLabelValues(reason).Inc()
		h.writeError(w, err)
		return
	}

	metrics.SignaturesAccepted.Inc()
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type verifySignatureRequest struct {
	DocumentID  uint64 `json:"document_id"`
	Signer      string `json:"signer"`
	RoleID      string `json:"role_id"`
	ContentHash string `json:"content_hash"`
	Deadline    string `json:"deadline"`
	Signature   string `json:"signature"`
}

// HandleVerifySignature checks a signature without recording anything.
//
// URL format: POST /api/public/signatures/verify
func (h *Handler) HandleVerifySignature(w http.ResponseWriter, r *http.Request) {
	var req verifySignatureRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	signer, err := interfaces.NewAddressFromHex(req.Signer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	role, contentHash, deadline, sig, err := parseSignatureFields(req.RoleID, req.ContentHash, req.Deadline, req.Signature)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	valid, err := h.inst.Ledger.VerifyExternalSignature(interfaces.DocumentID(req.DocumentID), signer, role, contentHash, deadline, sig)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func parseSignatureFields(roleHex, contentHashHex, deadlineRaw, sigHex string) (interfaces.RoleID, interfaces.ContentID, time.Time, interfaces.Signature, error) {
	role, err := interfaces.NewRoleIDFromHex(roleHex)
	if err != nil {
		return interfaces.RoleID{}, interfaces.ContentID{}, time.Time{}, nil, err
	}
	contentHash, err := interfaces.NewContentIDFromHex(contentHashHex)
	if err != nil {
		return interfaces.RoleID{}, interfaces.ContentID{}, time.Time{}, nil, err
	}
	deadline, err := time.Parse(time.RFC3339, deadlineRaw)
	if err != nil {
		return interfaces.RoleID{}, interfaces.ContentID{}, time.Time{}, nil, fmt.Errorf("invalid deadline: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return interfaces.RoleID{}, interfaces.ContentID{}, time.Time{}, nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	return role, contentHash, deadline, interfaces.Signature(sig), nil
}

// --- Workflows ---

type createTemplateRequest struct {
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	Required  []bool   `json:"required"`
	Order     []int    `json:"order"`
	Deadlines []string `json:"deadlines"`
}

// HandleCreateTemplate defines or replaces a workflow template.
//
// URL format: POST /api/workflows/templates
func (h *Handler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req createTemplateRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	roles := make([]interfaces.RoleID, 0, len(req.Roles))
	for _, raw := range req.Roles {
		role, err := interfaces.NewRoleIDFromHex(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		roles = append(roles, role)
	}
	deadlines := make([]time.Time, 0, len(req.Deadlines))
	for _, raw := range req.Deadlines {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid deadline: %v", err), http.StatusBadRequest)
			return
		}
		deadlines = append(deadlines, deadline)
	}

	if err := h.inst.Workflow.CreateWorkflowTemplate(caller, req.Name, roles, req.Required, req.Order, deadlines); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

type createWorkflowRequest struct {
	Template string `json:"template"`
}

// HandleCreateWorkflow binds a workflow instance to a document.
//
// URL format: POST /api/documents/{document_id}/workflow
func (h *Handler) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req createWorkflowRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.inst.Workflow.CreateDocumentWorkflow(caller, id, req.Template); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

type completeStepRequest struct {
	Signer      string `json:"signer"`
	ContentHash string `json:"content_hash"`
	Deadline    string `json:"deadline"`
	Signature   string `json:"signature"`
}

// HandleCompleteStep completes a workflow step with a signature produced
// off-band by the signer.
//
// URL format: POST /api/documents/{document_id}/workflow/steps/{step_index}
func (h *Handler) HandleCompleteStep(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stepIndex, err := strconv.Atoi(r.PathValue("step_index"))
	if err != nil {
		http.Error(w, "invalid step index", http.StatusBadRequest)
		return
	}
	var req completeStepRequest
	if err := h.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	signer, err := interfaces.NewAddressFromHex(req.Signer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	contentHash, err := interfaces.NewContentIDFromHex(req.ContentHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid deadline: %v", err), http.StatusBadRequest)
		return
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		http.Error(w, "invalid signature hex", http.StatusBadRequest)
		return
	}

	if err := h.inst.Workflow.CompleteWorkflowStep(caller, id, stepIndex, signer, contentHash, deadline, interfaces.Signature(sig)); err != nil {
		_, reason := classifyError(err)
		metrics.SignaturesRejected.WithLabelValues(reason).Inc()
		h.writeError(w, err)
		return
	}

	metrics.WorkflowStepsCompleted.Inc()
	metrics.SignaturesAccepted.Inc()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// --- Public queries ---

type roleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	Creator     string `json:"creator,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toRoleResponse(role interfaces.Role) roleResponse {
	out := roleResponse{
		ID:          role.ID.String(),
		Name:        role.Name,
		Description: role.Description,
		Active:      role.Active,
		CreatedAt:   role.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !role.Creator.IsZero() {
		out.Creator = role.Creator.String()
	}
	return out
}

// HandleListRoles lists roles; ?active=true filters to active ones.
//
// URL format: GET /api/public/roles
func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	var roles []interfaces.Role
	if r.URL.Query().Get("active") == "true" {
		roles = h.inst.Authority.ActiveRoles()
	} else {
		roles = h.inst.Authority.AllRoles()
	}

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	h.writeJSON(w, http.StatusOK, out)
}

type memberResponse struct {
	Address    string   `json:"address"`
	Name       string   `json:"name"`
	Department string   `json:"department,omitempty"`
	Active     bool     `json:"active"`
	JoinedAt   string   `json:"joined_at"`
	Roles      []string `json:"roles"`
}

func toMemberResponse(m interfaces.Member) memberResponse {
	roles := make([]string, 0, len(m.Roles))
	for _, role := range m.Roles {
		roles = append(roles, role.String())
	}
	return memberResponse{
		Address:    m.Address.String(),
		Name:       m.Name,
		Department: m.Department,
		Active:     m.Active,
		JoinedAt:   m.JoinedAt.UTC().Format(time.RFC3339),
		Roles:      roles,
	}
}

// HandleListMembers lists all members.
//
// URL format: GET /api/public/members
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	members := h.inst.Authority.Members()
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleGetMember returns one membership record.
//
// URL format: GET /api/public/members/{address}
func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	addr, err := interfaces.NewAddressFromHex(r.PathValue("address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := h.inst.Authority.Member(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMemberResponse(m))
}

type departmentResponse struct {
	Name    string   `json:"name"`
	Head    string   `json:"head,omitempty"`
	Active  bool     `json:"active"`
	Members []string `json:"members"`
}

func toDepartmentResponse(d interfaces.Department) departmentResponse {
	members := make([]string, 0, len(d.Members))
	for _, addr := range d.Members {
		members = append(members, addr.String())
	}
	out := departmentResponse{
		Name:    d.Name,
		Active:  d.Active,
		Members: members,
	}
	if !d.Head.IsZero() {
		out.Head = d.Head.String()
	}
	return out
}

// HandleListDepartments lists all departments.
//
// URL format: GET /api/public/departments
func (h *Handler) HandleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments := h.inst.Authority.Departments()
	out := make([]departmentResponse, 0, len(departments))
	for _, d := range departments {
		out = append(out, toDepartmentResponse(d))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleGetDepartment returns one department record.
//
// URL format: GET /api/public/departments/{name}
func (h *Handler) HandleGetDepartment(w http.ResponseWriter, r *http.Request) {
	d, err := h.inst.Authority.Department(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDepartmentResponse(d))
}

type documentResponse struct {
	ID                 uint64   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	ContentHash        string   `json:"content_hash"`
	ContentRef         string   `json:"content_ref,omitempty"`
	State              string   `json:"state"`
	CreatedAt          string   `json:"created_at"`
	Deadline           string   `json:"deadline"`
	Creator            string   `json:"creator"`
	Beneficiary        string   `json:"beneficiary"`
	RequiredRoles      []string `json:"required_roles"`
	RequiredSignatures int      `json:"required_signatures"`
	DocumentType       string   `json:"document_type"`
}

func toDocumentResponse(doc interfaces.Document) documentResponse {
	roles := make([]string, 0, len(doc.RequiredRoles))
	for _, role := range doc.RequiredRoles {
		roles = append(roles, role.String())
	}
	return documentResponse{
		ID:                 uint64(doc.ID),
		Title:              doc.Title,
		Description:        doc.Description,
		ContentHash:        doc.ContentHash.String(),
		ContentRef:         doc.ContentRef,
		State:              doc.State.String(),
		CreatedAt:          doc.CreatedAt.UTC().Format(time.RFC3339),
		Deadline:           doc.Deadline.UTC().Format(time.RFC3339),
		Creator:            doc.Creator.String(),
		Beneficiary:        doc.Beneficiary.String(),
		RequiredRoles:      roles,
		RequiredSignatures: doc.RequiredSignatures,
		DocumentType:       doc.DocumentType,
	}
}

// HandleListDocuments lists documents, filtered by ?beneficiary= or ?state=.
//
// URL format: GET /api/public/documents
func (h *Handler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	var docs []interfaces.Document

	query := r.URL.Query()
	switch {
	case query.Get("beneficiary") != "":
		addr, err := interfaces.NewAddressFromHex(query.Get("beneficiary"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		docs = h.inst.Documents.DocumentsByBeneficiary(addr)
	case query.Get("state") != "":
		state, err := parseDocumentState(query.Get("state"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		docs = h.inst.Documents.DocumentsByState(state)
	default:
		http.Error(w, "beneficiary or state query parameter required", http.StatusBadRequest)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func parseDocumentState(raw string) (interfaces.DocumentState, error) {
	for _, state := range []interfaces.DocumentState{
		interfaces.StateDraft,
		interfaces.StatePendingSignatures,
		interfaces.StatePartiallySigned,
		interfaces.StateCompleted,
		interfaces.StateCancelled,
	} {
		if state.String() == raw {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown document state %q", raw)
}

// HandleGetDocument returns one document record with its certificate holder.
//
// URL format: GET /api/public/documents/{document_id}
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := h.inst.Documents.Document(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// HandleGetContent streams the document body from the content store and
// verifies it against the recorded content hash before serving.
//
// URL format: GET /api/public/documents/{document_id}/content
func (h *Handler) HandleGetContent(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := h.inst.Documents.Document(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if doc.ContentHash == (interfaces.ContentID{}) {
		h.writeError(w, interfaces.ErrContentNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	data, err := h.store.Fetch(ctx, doc.ContentHash, interfaces.DocumentContent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !interfaces.ComputeContentID(data).Equal(doc.ContentHash) {
		h.log.Error("Stored content does not match recorded hash",
			"document", uint64(id), "content_hash", doc.ContentHash.String())
		http.Error(w, "content hash mismatch", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleGetMetadata returns the certificate metadata data URI.
//
// URL format: GET /api/public/documents/{document_id}/metadata
func (h *Handler) HandleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	uri, err := h.inst.Documents.TokenMetadata(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token_uri": uri})
}

type signatureResponse struct {
	Signer      string `json:"signer"`
	RoleID      string `json:"role_id"`
	SignedAt    string `json:"signed_at"`
	ContentHash string `json:"content_hash"`
	Deadline    string `json:"deadline"`
	Valid       bool   `json:"valid"`
}

// HandleListSignatures returns the accepted signatures for a document.
//
// URL format: GET /api/public/documents/{document_id}/signatures
func (h *Handler) HandleListSignatures(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records := h.inst.Ledger.DocumentSignatures(id)
	out := make([]signatureResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, signatureResponse{
			Signer:      rec.Signer.String(),
			RoleID:      rec.Role.String(),
			SignedAt:    rec.SignedAt.UTC().Format(time.RFC3339),
			ContentHash: rec.ContentHash.String(),
			Deadline:    rec.Deadline.UTC().Format(time.RFC3339),
			Valid:       rec.Valid,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

type workflowStepResponse struct {
	RoleID      string `json:"role_id"`
	Required    bool   `json:"required"`
	Order       int    `json:"order"`
	Deadline    string `json:"deadline"`
	Completed   bool   `json:"completed"`
	CompletedBy string `json:"completed_by,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type workflowResponse struct {
	DocumentID  uint64                 `json:"document_id"`
	Template    string                 `json:"template"`
	Steps       []workflowStepResponse `json:"steps"`
	CurrentStep int                    `json:"current_step"`
	Completed   bool                   `json:"completed"`
	CreatedAt   string                 `json:"created_at"`
}

// HandleGetWorkflow returns the workflow instance bound to a document.
//
// URL format: GET /api/public/documents/{document_id}/workflow
func (h *Handler) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wf, err := h.inst.Workflow.Workflow(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	steps := make([]workflowStepResponse, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		out := workflowStepResponse{
			RoleID:    step.Role.String(),
			Required:  step.Required,
			Order:     step.Order,
			Deadline:  step.Deadline.UTC().Format(time.RFC3339),
			Completed: step.Completed,
		}
		if step.Completed {
			out.CompletedBy = step.CompletedBy.String()
			out.CompletedAt = step.CompletedAt.UTC().Format(time.RFC3339)
		}
		steps = append(steps, out)
	}

	h.writeJSON(w, http.StatusOK, workflowResponse{
		DocumentID:  uint64(wf.DocumentID),
		Template:    wf.Template,
		Steps:       steps,
		CurrentStep: wf.CurrentStep,
		Completed:   wf.Completed,
		CreatedAt:   wf.CreatedAt.UTC().Format(time.RFC3339),
	})
}
