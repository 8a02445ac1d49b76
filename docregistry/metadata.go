package docregistry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

type metadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type tokenMetadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Image       string              `json:"image,omitempty"`
	Attributes  []metadataAttribute `json:"attributes"`
}

// TokenMetadata renders the certificate metadata as a self-contained
// base64 data URI. Status and the received-signature count are read live,
// so the rendered metadata always reflects the current lifecycle state.
func (r *Registry) TokenMetadata(id interfaces.DocumentID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return "", interfaces.ErrUnknownDocument
	}
	if _, minted := r.owners[id]; !minted {
		return "", fmt.Errorf("%w: certificate burned", interfaces.ErrUnknownDocument)
	}

	received := r.ledger.SignatureCount(id)

	meta := tokenMetadata{
		Name:        fmt.Sprintf("%s #%d", r.nftName, id),
		Description: doc.Description,
		Image:       doc.ContentRef,
		Attributes: []metadataAttribute{
			{TraitType: "Document Type", Value: doc.DocumentType},
			{TraitType: "Status", Value: doc.State.String()},
			{TraitType: "Beneficiary", Value: doc.Beneficiary.String()},
			{TraitType: "Creator", Value: doc.Creator.String()},
			{TraitType: "Signatures Received", Value: strconv.Itoa(received)},
			{TraitType: "Signatures Required", Value: strconv.Itoa(doc.RequiredSignatures)},
			{TraitType: "Created At", Value: doc.CreatedAt.UTC().Format(time.RFC3339)},
			{TraitType: "Deadline", Value: doc.Deadline.UTC().Format(time.RFC3339)},
		},
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
