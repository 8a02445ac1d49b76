// Package factory deploys a complete institution: the authority registry,
// the signature ledger, the workflow engine and the document registry,
// wired together with their cross-component capabilities already granted.
package factory

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/instidoc/institution-registry-backend/authority"
	"github.com/instidoc/institution-registry-backend/docregistry"
	"github.com/instidoc/institution-registry-backend/interfaces"
	"github.com/instidoc/institution-registry-backend/sigledger"
	"github.com/instidoc/institution-registry-backend/workflow"
)

// Config describes one institution deployment.
type Config struct {
	// Name is the institution name, bound into the signature domain.
	Name string
	// NFTName and NFTSymbol label the certificate collection.
	NFTName   string
	NFTSymbol string
	// Version is bound into the signature domain; bumping it on redeploy
	// invalidates signatures produced for the previous deployment.
	Version string
	// Admin receives the administrator and role-creator capabilities.
	Admin interfaces.Address

	Log   *slog.Logger
	Clock func() time.Time
}

// Institution is a fully wired deployment.
type Institution struct {
	Name string

	Authority *authority.Registry
	Ledger    *sigledger.Ledger
	Workflow  *workflow.Engine
	Documents *docregistry.Registry

	// Component capability addresses, deterministic per institution name.
	LedgerAddr   interfaces.Address
	WorkflowAddr interfaces.Address
	RegistryAddr interfaces.Address
}

// componentAddr derives a deterministic capability address for a named
// component of an institution. Components are not externally owned
// accounts; the address only serves as a capability holder identity.
func componentAddr(institution, component string) interfaces.Address {
	sum := crypto.Keccak256([]byte(institution + ":" + component))
	addr, _ := interfaces.NewAddressFromBytes(sum[12:32])
	return addr
}

// SigningDomain returns the signature domain a deployment of the named
// institution verifies approvals under. Offline signing tools use this to
// produce digests without access to the running deployment.
func SigningDomain(institution, version string) sigledger.Domain {
	if version == "" {
		version = "1"
	}
	return sigledger.Domain{
		Institution: institution,
		Version:     version,
		Instance:    componentAddr(institution, "sigledger"),
	}
}

// New deploys an institution. The admin receives every management
// capability; the workflow engine's component address receives the relay
// and state-updater capabilities it needs to drive approvals end to end.
func New(cfg Config) (*Institution, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: empty institution name", interfaces.ErrPrecondition)
	}
	if cfg.Admin.IsZero() {
		return nil, fmt.Errorf("%w: zero admin address", interfaces.ErrPrecondition)
	}
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	ledgerAddr := componentAddr(cfg.Name, "sigledger")
	workflowAddr := componentAddr(cfg.Name, "workflow")
	registryAddr := componentAddr(cfg.Name, "docregistry")

	auth := authority.NewRegistry(cfg.Name, authority.Bootstrap{
		Admin: cfg.Admin,
		Grants: []authority.CapabilityGrant{
			{Role: interfaces.WorkflowAdminRole, Holder: cfg.Admin},
			{Role: interfaces.CreatorRole, Holder: cfg.Admin},
			{Role: interfaces.MinterRole, Holder: cfg.Admin},
			{Role: interfaces.UpdaterRole, Holder: cfg.Admin},
			{Role: interfaces.WorkflowRole, Holder: workflowAddr},
			{Role: interfaces.UpdaterRole, Holder: workflowAddr},
		},
	}, authority.WithClock(clock))

	ledger := sigledger.NewLedger(SigningDomain(cfg.Name, cfg.Version), auth, sigledger.WithClock(clock))

	documents := docregistry.NewRegistry(cfg.NFTName, cfg.NFTSymbol, auth, ledger, docregistry.WithClock(clock))

	engine := workflow.NewEngine(workflowAddr, auth, ledger, documents, workflow.WithClock(clock))

	cfg.Log.Info("institution deployed",
		"institution", cfg.Name,
		"admin", cfg.Admin.String(),
		"ledger_addr", ledgerAddr.String(),
		"workflow_addr", workflowAddr.String(),
	)

	return &Institution{
		Name:         cfg.Name,
		Authority:    auth,
		Ledger:       ledger,
		Workflow:     engine,
		Documents:    documents,
		LedgerAddr:   ledgerAddr,
		WorkflowAddr: workflowAddr,
		RegistryAddr: registryAddr,
	}, nil
}
