package decision

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
	"github.com/tarifwerk/tarifwerk/internal/engine"
)

// ErrCatalogNotLoaded reports that no catalog snapshot has been published
// yet. Server state, not a caller fault.
var ErrCatalogNotLoaded = errors.New("catalog not loaded")

// Options are server-side engine policies applied to every run.
type Options struct {
	DiagnosisChecks      bool
	MedicationNameLookup bool
}

// Service validates decision requests and runs the engine against the
// current catalog snapshot. Stateless apart from the shared snapshot
// handle; concurrent runs are independent.
type Service struct {
	store  *catalog.Store
	opts   Options
	logger zerolog.Logger
}

func NewService(store *catalog.Store, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "decision").Logger(),
	}
}

func (s *Service) Decide(req *DecideRequest) (*DecideResponse, error) {
	if len(req.Services) == 0 {
		return nil, fmt.Errorf("services is required")
	}
	for _, rs := range req.Services {
		if rs.Code == "" {
			return nil, fmt.Errorf("service code is required")
		}
		if rs.Quantity < 0 {
			return nil, fmt.Errorf("service %s: quantity must not be negative", rs.Code)
		}
	}
	if req.Context.Age != nil && *req.Context.Age < 0 {
		return nil, fmt.Errorf("age must not be negative")
	}

	snap := s.store.Current()
	if snap == nil {
		return nil, ErrCatalogNotLoaded
	}

	ectx := req.Context
	ectx.DiagnosisChecks = s.opts.DiagnosisChecks
	ectx.MedicationNameLookup = s.opts.MedicationNameLookup

	d := engine.Decide(req.Services, ectx, snap)

	resp := &DecideResponse{
		RunID:           uuid.New(),
		CatalogLoadedAt: snap.LoadedAt,
		Decision:        d,
	}
	evt := s.logger.Info().
		Str("run_id", resp.RunID.String()).
		Str("kind", string(d.Kind)).
		Int("services", len(req.Services))
	if d.Package != nil {
		evt = evt.Str("package", d.Package.PackageID)
	}
	evt.Msg("decision computed")
	return resp, nil
}
