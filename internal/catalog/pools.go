package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ArmSpec is one arm's initial definition, supplied at pool creation.
type ArmSpec struct {
	Name     string
	Metadata map[string]string
}

// CreatePool inserts a new pool together with its initial arms in a
// single transaction, assigning each arm a dense index starting at 0.
func (c *Catalog) CreatePool(ctx context.Context, name string, arms []ArmSpec) (*domain.Pool, error) {
	id := uuid.NewString()
	now := time.Now()
	pool := &domain.Pool{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}

	err := c.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pools (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
			id, name, now); err != nil {
			return qerrors.Conflict("create pool: " + err.Error())
		}
		for i, spec := range arms {
			meta, err := json.Marshal(spec.Metadata)
			if err != nil {
				return qerrors.Internal("encode arm metadata: " + err.Error())
			}
			armID := uuid.NewString()
			if _, err := tx.Exec(ctx,
				`INSERT INTO arms (id, pool_id, name, index, is_active, metadata) VALUES ($1, $2, $3, $4, true, $5)`,
				armID, id, spec.Name, i, meta); err != nil {
				return qerrors.Unavailable("create pool arm: " + err.Error())
			}
			pool.Arms = append(pool.Arms, domain.Arm{ID: armID, Name: spec.Name, Index: i, IsActive: true, Metadata: spec.Metadata})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// AddArm appends a single arm to an existing pool at the next dense
// index, for growing a pool after its initial creation.
func (c *Catalog) AddArm(ctx context.Context, poolID, name string, metadata map[string]string) (*domain.Arm, error) {
	var nextIndex int
	err := c.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(index) + 1, 0) FROM arms WHERE pool_id = $1`, poolID,
	).Scan(&nextIndex)
	if err != nil {
		return nil, qerrors.Internal("add arm index lookup: " + err.Error())
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, qerrors.Internal("add arm metadata encode: " + err.Error())
	}

	id := uuid.NewString()
	_, err = c.pool.Exec(ctx,
		`INSERT INTO arms (id, pool_id, name, index, is_active, metadata) VALUES ($1, $2, $3, $4, true, $5)`,
		id, poolID, name, nextIndex, meta)
	if err != nil {
		if foreignKeyViolation(err) {
			return nil, qerrors.NotFound("pool not found: " + poolID)
		}
		return nil, qerrors.Unavailable("add arm: " + err.Error())
	}
	return &domain.Arm{ID: id, Name: name, Index: nextIndex, IsActive: true, Metadata: metadata}, nil
}

// GetPool loads a pool and its arms ordered by index.
func (c *Catalog) GetPool(ctx context.Context, poolID string) (*domain.Pool, error) {
	var p domain.Pool
	p.ID = poolID
	err := c.pool.QueryRow(ctx,
		`SELECT name, created_at, updated_at FROM pools WHERE id = $1`, poolID,
	).Scan(&p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "pool not found: "+poolID)
	}

	rows, err := c.pool.Query(ctx,
		`SELECT id, name, index, is_active, metadata FROM arms WHERE pool_id = $1 ORDER BY index`, poolID)
	if err != nil {
		return nil, qerrors.Unavailable("list arms: " + err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var arm domain.Arm
		var meta []byte
		if err := rows.Scan(&arm.ID, &arm.Name, &arm.Index, &arm.IsActive, &meta); err != nil {
			return nil, qerrors.Internal("scan arm: " + err.Error())
		}
		_ = json.Unmarshal(meta, &arm.Metadata)
		p.Arms = append(p.Arms, arm)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Unavailable("list arms: " + err.Error())
	}
	return &p, nil
}

// ListPools returns pools ordered by creation time, paginated; arms are
// not preloaded (GetPool fetches a single pool's arms on demand).
func (c *Catalog) ListPools(ctx context.Context, limit, offset int) ([]domain.Pool, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM pools ORDER BY created_at LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, qerrors.Unavailable("list pools: " + err.Error())
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var p domain.Pool
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, qerrors.Internal("scan pool: " + err.Error())
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Unavailable("list pools: " + err.Error())
	}
	return pools, nil
}

// DeletePool removes a pool and its arms. An experiment still
// referencing the pool blocks the delete with Conflict rather than
// surfacing the foreign-key violation directly.
func (c *Catalog) DeletePool(ctx context.Context, poolID string) error {
	var refs int
	if err := c.pool.QueryRow(ctx,
		`SELECT count(*) FROM experiments WHERE pool_id = $1`, poolID,
	).Scan(&refs); err != nil {
		return qerrors.Unavailable("check pool references: " + err.Error())
	}
	if refs > 0 {
		return qerrors.Conflict("pool referenced by an experiment: " + poolID)
	}

	tag, err := c.pool.Exec(ctx, `DELETE FROM pools WHERE id = $1`, poolID)
	if err != nil {
		return qerrors.Unavailable("delete pool: " + err.Error())
	}
	if tag.RowsAffected() == 0 {
		return qerrors.NotFound("pool not found: " + poolID)
	}
	return nil
}
