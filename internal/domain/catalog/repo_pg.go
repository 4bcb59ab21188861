package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Service Code Repository ===========

type serviceCodeRepoPG struct{ pool *pgxpool.Pool }

func NewServiceCodeRepoPG(pool *pgxpool.Pool) ServiceCodeRepository {
	return &serviceCodeRepoPG{pool: pool}
}

func (r *serviceCodeRepoPG) conn(ctx context.Context) queryable { return r.pool }

const serviceCodeCols = `code, kind, description, chapter, max_quantity, minutes_per_unit,
	prerequisite, min_age, max_age, sex, medical_points, technical_points,
	package_trigger, created_at, updated_at`

func (r *serviceCodeRepoPG) scanServiceCode(row pgx.Row) (*ServiceCode, error) {
	var sc ServiceCode
	err := row.Scan(&sc.Code, &sc.Kind, &sc.Description, &sc.Chapter, &sc.MaxQuantity, &sc.MinutesPerUnit,
		&sc.Prerequisite, &sc.MinAge, &sc.MaxAge, &sc.Sex, &sc.MedicalPoints, &sc.TechnicalPoints,
		&sc.PackageTrigger, &sc.CreatedAt, &sc.UpdatedAt)
	return &sc, err
}

func (r *serviceCodeRepoPG) GetByCode(ctx context.Context, code string) (*ServiceCode, error) {
	sc, err := r.scanServiceCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+serviceCodeCols+` FROM service_code WHERE code = $1`, code))
	if err != nil {
		return nil, err
	}
	if err := r.fillExclusions(ctx, map[string]*ServiceCode{sc.Code: sc}); err != nil {
		return nil, err
	}
	return sc, nil
}

func (r *serviceCodeRepoPG) List(ctx context.Context, limit, offset int) ([]*ServiceCode, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_code`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+serviceCodeCols+` FROM service_code ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ServiceCode
	for rows.Next() {
		sc, err := r.scanServiceCode(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sc)
	}
	return items, total, rows.Err()
}

func (r *serviceCodeRepoPG) ListAll(ctx context.Context) ([]*ServiceCode, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+serviceCodeCols+` FROM service_code ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ServiceCode
	byCode := make(map[string]*ServiceCode)
	for rows.Next() {
		sc, err := r.scanServiceCode(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sc)
		byCode[sc.Code] = sc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.fillExclusions(ctx, byCode); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *serviceCodeRepoPG) fillExclusions(ctx context.Context, byCode map[string]*ServiceCode) error {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT code, excluded_code FROM service_code_exclusion ORDER BY code, excluded_code`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var code, excluded string
		if err := rows.Scan(&code, &excluded); err != nil {
			return err
		}
		if sc, ok := byCode[code]; ok {
			sc.Excluded = append(sc.Excluded, excluded)
		}
	}
	return rows.Err()
}

// =========== Code Table Repository ===========

type codeTableRepoPG struct{ pool *pgxpool.Pool }

func NewCodeTableRepoPG(pool *pgxpool.Pool) CodeTableRepository {
	return &codeTableRepoPG{pool: pool}
}

func (r *codeTableRepoPG) conn(ctx context.Context) queryable { return r.pool }

const codeTableCols = `name, kind, created_at, updated_at`

func (r *codeTableRepoPG) scanTable(row pgx.Row) (*CodeTable, error) {
	var t CodeTable
	err := row.Scan(&t.Name, &t.Kind, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *codeTableRepoPG) GetByName(ctx context.Context, name string) (*CodeTable, error) {
	t, err := r.scanTable(r.conn(ctx).QueryRow(ctx,
		`SELECT `+codeTableCols+` FROM code_table WHERE name = $1`, name))
	if err != nil {
		return nil, err
	}
	if err := r.fillEntries(ctx, map[string]*CodeTable{t.Name: t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *codeTableRepoPG) List(ctx context.Context, limit, offset int) ([]*CodeTable, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM code_table`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+codeTableCols+` FROM code_table ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CodeTable
	for rows.Next() {
		t, err := r.scanTable(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *codeTableRepoPG) ListAll(ctx context.Context) ([]*CodeTable, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+codeTableCols+` FROM code_table ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CodeTable
	byName := make(map[string]*CodeTable)
	for rows.Next() {
		t, err := r.scanTable(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
		byName[t.Name] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.fillEntries(ctx, byName); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *codeTableRepoPG) fillEntries(ctx context.Context, byName map[string]*CodeTable) error {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT table_name, code, text FROM code_table_entry ORDER BY table_name, code`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var table string
		var e CodeTableEntry
		if err := rows.Scan(&table, &e.Code, &e.Text); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.Entries = append(t.Entries, e)
		}
	}
	return rows.Err()
}

// =========== Package Repository ===========

type packageRepoPG struct{ pool *pgxpool.Pool }

func NewPackageRepoPG(pool *pgxpool.Pool) PackageRepository {
	return &packageRepoPG{pool: pool}
}

func (r *packageRepoPG) conn(ctx context.Context) queryable { return r.pool }

const packageCols = `id, text, tax_points, chapter, condition_expr, created_at, updated_at`

func (r *packageRepoPG) scanPackage(row pgx.Row) (*PackageDefinition, error) {
	var p PackageDefinition
	err := row.Scan(&p.ID, &p.Text, &p.TaxPoints, &p.Chapter, &p.ConditionExpr, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *packageRepoPG) GetByID(ctx context.Context, id string) (*PackageDefinition, error) {
	return r.scanPackage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+packageCols+` FROM package WHERE id = $1`, id))
}

func (r *packageRepoPG) List(ctx context.Context, limit, offset int) ([]*PackageDefinition, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM package`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+packageCols+` FROM package ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*PackageDefinition
	for rows.Next() {
		p, err := r.scanPackage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *packageRepoPG) ListAll(ctx context.Context) ([]*PackageDefinition, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+packageCols+` FROM package ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PackageDefinition
	for rows.Next() {
		p, err := r.scanPackage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *packageRepoPG) ListConditions(ctx context.Context) ([]PackageCondition, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT package_id, group_no, sort_order, kind, operand, negated
		FROM package_condition
		ORDER BY package_id, group_no, sort_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PackageCondition
	for rows.Next() {
		var c PackageCondition
		if err := rows.Scan(&c.PackageID, &c.GroupNo, &c.SortOrder, &c.Kind, &c.Operand, &c.Negated); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *packageRepoPG) ListLinks(ctx context.Context) ([]ServicePackageLink, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT service_code, package_id FROM service_package_link ORDER BY service_code, package_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ServicePackageLink
	for rows.Next() {
		var l ServicePackageLink
		if err := rows.Scan(&l.ServiceCode, &l.PackageID); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
