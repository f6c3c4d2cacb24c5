package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

// ExperimentUpdate carries the mutable fields of an experiment; a nil
// field is left unchanged.
type ExperimentUpdate struct {
	Name         *string
	PolicyName   *string
	PolicyParams map[string]float64
}

// CreateExperiment binds a policy to a pool and publishes the initial
// snapshot so the selector can serve it immediately. The policy name
// must already be registered, and the pool must exist.
func (c *Catalog) CreateExperiment(ctx context.Context, name, poolID, policyName string, policyParams map[string]float64) (*domain.Experiment, error) {
	if c.policies != nil && !c.policies.Registered(policyName) {
		return nil, qerrors.InvalidArgument("unknown policy: " + policyName)
	}

	id := uuid.NewString()
	now := time.Now()
	params, err := json.Marshal(policyParams)
	if err != nil {
		return nil, qerrors.Internal("encode policy_params: " + err.Error())
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO experiments (id, name, pool_id, policy, policy_params, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6, $6)`,
		id, name, poolID, policyName, params, now)
	if err != nil {
		if foreignKeyViolation(err) {
			return nil, qerrors.NotFound("pool not found: " + poolID)
		}
		return nil, qerrors.Conflict("create experiment: " + err.Error())
	}

	exp := &domain.Experiment{
		ID: id, Name: name, PoolID: poolID, Policy: policyName,
		PolicyParams: policyParams, Enabled: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := c.publishSnapshot(ctx, id); err != nil {
		return nil, err
	}
	return exp, nil
}

// GetExperiment loads a single experiment by id.
func (c *Catalog) GetExperiment(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	var (
		exp    domain.Experiment
		params []byte
	)
	exp.ID = experimentID
	err := c.pool.QueryRow(ctx,
		`SELECT name, pool_id, policy, policy_params, enabled, created_at, updated_at
		 FROM experiments WHERE id = $1`, experimentID,
	).Scan(&exp.Name, &exp.PoolID, &exp.Policy, &params, &exp.Enabled, &exp.CreatedAt, &exp.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "experiment not found: "+experimentID)
	}
	_ = json.Unmarshal(params, &exp.PolicyParams)
	return &exp, nil
}

// ListExperiments returns experiments ordered by creation time, paginated.
func (c *Catalog) ListExperiments(ctx context.Context, limit, offset int) ([]domain.Experiment, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, name, pool_id, policy, policy_params, enabled, created_at, updated_at
		 FROM experiments ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, qerrors.Unavailable("list experiments: " + err.Error())
	}
	defer rows.Close()

	var exps []domain.Experiment
	for rows.Next() {
		var (
			exp    domain.Experiment
			params []byte
		)
		if err := rows.Scan(&exp.ID, &exp.Name, &exp.PoolID, &exp.Policy, &params, &exp.Enabled, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
			return nil, qerrors.Internal("scan experiment: " + err.Error())
		}
		_ = json.Unmarshal(params, &exp.PolicyParams)
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Unavailable("list experiments: " + err.Error())
	}
	return exps, nil
}

// UpdateExperiment applies the given field changes and republishes the
// snapshot; fields left nil in upd keep their current value.
func (c *Catalog) UpdateExperiment(ctx context.Context, experimentID string, upd ExperimentUpdate) (*domain.Experiment, error) {
	if upd.PolicyName != nil && c.policies != nil && !c.policies.Registered(*upd.PolicyName) {
		return nil, qerrors.InvalidArgument("unknown policy: " + *upd.PolicyName)
	}

	current, err := c.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if upd.Name != nil {
		name = *upd.Name
	}
	policyName := current.Policy
	if upd.PolicyName != nil {
		policyName = *upd.PolicyName
	}
	policyParams := current.PolicyParams
	if upd.PolicyParams != nil {
		policyParams = upd.PolicyParams
	}

	params, err := json.Marshal(policyParams)
	if err != nil {
		return nil, qerrors.Internal("encode policy_params: " + err.Error())
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE experiments SET name = $1, policy = $2, policy_params = $3, updated_at = now() WHERE id = $4`,
		name, policyName, params, experimentID)
	if err != nil {
		return nil, qerrors.Conflict("update experiment: " + err.Error())
	}
	if tag.RowsAffected() == 0 {
		return nil, qerrors.NotFound("experiment not found: " + experimentID)
	}
	if err := c.publishSnapshot(ctx, experimentID); err != nil {
		return nil, err
	}
	return c.GetExperiment(ctx, experimentID)
}

// SetExperimentEnabled flips the enabled flag and republishes the
// snapshot.
func (c *Catalog) SetExperimentEnabled(ctx context.Context, experimentID string, enabled bool) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE experiments SET enabled = $1, updated_at = now() WHERE id = $2`, enabled, experimentID)
	if err != nil {
		return qerrors.Unavailable("update experiment: " + err.Error())
	}
	if tag.RowsAffected() == 0 {
		return qerrors.NotFound("experiment not found: " + experimentID)
	}
	return c.publishSnapshot(ctx, experimentID)
}

// DeleteExperiment removes an experiment and its feature gate, and
// deletes its published snapshot and stored parameters.
func (c *Catalog) DeleteExperiment(ctx context.Context, experimentID string) error {
	err := c.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM feature_gates WHERE experiment_id = $1`, experimentID); err != nil {
			return qerrors.Unavailable("delete feature gate: " + err.Error())
		}
		tag, err := tx.Exec(ctx, `DELETE FROM experiments WHERE id = $1`, experimentID)
		if err != nil {
			return qerrors.Unavailable("delete experiment: " + err.Error())
		}
		if tag.RowsAffected() == 0 {
			return qerrors.NotFound("experiment not found: " + experimentID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if c.snapshots != nil {
		return c.snapshots.DeleteSnapshot(ctx, experimentID)
	}
	return nil
}

// publishSnapshot reloads an experiment's full denormalized view and
// pushes it to the KV store. Experiment writes and gate-config upserts
// end by calling this; pool and arm writes (AddArm included) do not, so
// a snapshot keeps the arm list it was last published with.
func (c *Catalog) publishSnapshot(ctx context.Context, experimentID string) error {
	if c.snapshots == nil {
		return nil
	}
	var (
		name, poolID, policyName string
		params                   []byte
		enabled                  bool
	)
	err := c.pool.QueryRow(ctx,
		`SELECT name, pool_id, policy, policy_params, enabled FROM experiments WHERE id = $1`, experimentID,
	).Scan(&name, &poolID, &policyName, &params, &enabled)
	if err != nil {
		return wrapNotFound(err, "experiment not found: "+experimentID)
	}

	var policyParams map[string]float64
	_ = json.Unmarshal(params, &policyParams)

	pool, err := c.GetPool(ctx, poolID)
	if err != nil {
		return err
	}

	snap := domain.ExperimentSnapshot{
		ExperimentID: experimentID,
		Name:         name,
		PoolID:       poolID,
		Policy:       policyName,
		PolicyParams: policyParams,
		NumArms:      len(pool.Arms),
		Arms:         pool.Arms,
		Enabled:      enabled,
	}
	return c.snapshots.SetSnapshot(ctx, snap)
}
