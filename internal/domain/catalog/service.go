package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Service owns catalog reads and the snapshot lifecycle. The decision
// engine never talks to the repositories; it only consumes whichever
// snapshot the store currently holds.
type Service struct {
	serviceCodes ServiceCodeRepository
	codeTables   CodeTableRepository
	packages     PackageRepository
	store        *Store
	logger       zerolog.Logger
}

func NewService(
	serviceCodes ServiceCodeRepository,
	codeTables CodeTableRepository,
	packages PackageRepository,
	logger zerolog.Logger,
) *Service {
	return &Service{
		serviceCodes: serviceCodes,
		codeTables:   codeTables,
		packages:     packages,
		store:        NewStore(nil),
		logger:       logger.With().Str("component", "catalog").Logger(),
	}
}

// Store exposes the snapshot handle for wiring into the decision service.
func (s *Service) Store() *Store { return s.store }

// Load builds a snapshot from the repositories and publishes it. Called
// once at startup and again on every reload request; in-flight decision
// runs keep the snapshot they started with.
func (s *Service) Load(ctx context.Context) (*Snapshot, error) {
	services, err := s.serviceCodes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service codes: %w", err)
	}
	tables, err := s.codeTables.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load code tables: %w", err)
	}
	packages, err := s.packages.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	conditions, err := s.packages.ListConditions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load package conditions: %w", err)
	}
	links, err := s.packages.ListLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service-package links: %w", err)
	}

	snap := BuildSnapshot(BuildInput{
		Services:   services,
		Tables:     tables,
		Packages:   packages,
		Conditions: conditions,
		Links:      links,
	})

	for _, d := range snap.Diagnostics {
		s.logger.Warn().Str("diagnostic", d).Msg("catalog data integrity")
	}
	s.logger.Info().
		Int("service_codes", snap.ServiceCount()).
		Int("code_tables", snap.TableCount()).
		Int("packages", snap.PackageCount()).
		Int("diagnostics", len(snap.Diagnostics)).
		Msg("catalog snapshot loaded")

	s.store.Swap(snap)
	return snap, nil
}

func (s *Service) GetServiceCode(ctx context.Context, code string) (*ServiceCode, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	return s.serviceCodes.GetByCode(ctx, code)
}

func (s *Service) ListServiceCodes(ctx context.Context, limit, offset int) ([]*ServiceCode, int, error) {
	return s.serviceCodes.List(ctx, limit, offset)
}

func (s *Service) GetCodeTable(ctx context.Context, name string) (*CodeTable, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return s.codeTables.GetByName(ctx, name)
}

func (s *Service) ListCodeTables(ctx context.Context, limit, offset int) ([]*CodeTable, int, error) {
	return s.codeTables.List(ctx, limit, offset)
}

func (s *Service) GetPackage(ctx context.Context, id string) (*PackageDefinition, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	return s.packages.GetByID(ctx, id)
}

func (s *Service) ListPackages(ctx context.Context, limit, offset int) ([]*PackageDefinition, int, error) {
	return s.packages.List(ctx, limit, offset)
}
