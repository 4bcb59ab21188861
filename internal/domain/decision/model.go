package decision

import (
	"time"

	"github.com/google/uuid"

	"github.com/tarifwerk/tarifwerk/internal/engine"
)

// DecideRequest is the payload of POST /decisions. Services and context
// are produced by upstream collaborators (code extraction, candidate
// search); the engine only validates their rule conformance.
type DecideRequest struct {
	Services []engine.RequestedService `json:"services"`
	Context  engine.EncounterContext   `json:"context"`
}

// DecideResponse wraps the engine decision with run metadata. The decision
// itself is plain structured data so rendering layers can format it for
// any audience or locale.
type DecideResponse struct {
	RunID           uuid.UUID       `json:"run_id"`
	CatalogLoadedAt time.Time       `json:"catalog_loaded_at"`
	Decision        engine.Decision `json:"decision"`
}
