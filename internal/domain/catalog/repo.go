package catalog

import (
	"context"
)

type ServiceCodeRepository interface {
	GetByCode(ctx context.Context, code string) (*ServiceCode, error)
	List(ctx context.Context, limit, offset int) ([]*ServiceCode, int, error)
	// ListAll returns every service code with its exclusion partners
	// resolved, for snapshot building.
	ListAll(ctx context.Context) ([]*ServiceCode, error)
}

type CodeTableRepository interface {
	GetByName(ctx context.Context, name string) (*CodeTable, error)
	List(ctx context.Context, limit, offset int) ([]*CodeTable, int, error)
	// ListAll returns every table with its entries, for snapshot building.
	ListAll(ctx context.Context) ([]*CodeTable, error)
}

type PackageRepository interface {
	GetByID(ctx context.Context, id string) (*PackageDefinition, error)
	List(ctx context.Context, limit, offset int) ([]*PackageDefinition, int, error)
	ListAll(ctx context.Context) ([]*PackageDefinition, error)
	ListConditions(ctx context.Context) ([]PackageCondition, error)
	ListLinks(ctx context.Context) ([]ServicePackageLink, error)
}
