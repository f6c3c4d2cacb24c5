package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

// UpsertFeatureGate creates or replaces an experiment's gate config in
// one statement, bumping its version for cache-invalidation comparisons.
func (c *Catalog) UpsertFeatureGate(ctx context.Context, cfg domain.FeatureGate) (*domain.FeatureGate, error) {
	rules, err := json.Marshal(cfg.Rules)
	if err != nil {
		return nil, qerrors.Internal("encode rules: " + err.Error())
	}
	for _, r := range cfg.Rules {
		if !domain.ValidOperator(r.Operator) {
			return nil, qerrors.InvalidArgument("unknown rule operator: " + string(r.Operator))
		}
	}

	var activeStart, activeEnd *int64
	if cfg.ActiveHours.Start != nil {
		v := int64(*cfg.ActiveHours.Start)
		activeStart = &v
	}
	if cfg.ActiveHours.End != nil {
		v := int64(*cfg.ActiveHours.End)
		activeEnd = &v
	}

	id := uuid.NewString()
	now := time.Now()
	err = c.pool.QueryRow(ctx,
		`INSERT INTO feature_gates (
			id, experiment_id, enabled, rollout_percentage, default_arm_id,
			schedule_start, schedule_end, active_hours_start, active_hours_end,
			active_hours_tz, rules, version, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, 1, $12, $12)
		 ON CONFLICT (experiment_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			rollout_percentage = EXCLUDED.rollout_percentage,
			default_arm_id = EXCLUDED.default_arm_id,
			schedule_start = EXCLUDED.schedule_start,
			schedule_end = EXCLUDED.schedule_end,
			active_hours_start = EXCLUDED.active_hours_start,
			active_hours_end = EXCLUDED.active_hours_end,
			active_hours_tz = EXCLUDED.active_hours_tz,
			rules = EXCLUDED.rules,
			version = feature_gates.version + 1,
			updated_at = EXCLUDED.updated_at
		 RETURNING version`,
		id, cfg.ExperimentID, cfg.Enabled, cfg.RolloutPercentage, cfg.DefaultArmRef,
		cfg.Schedule.Start, cfg.Schedule.End, activeStart, activeEnd,
		cfg.ActiveHours.Timezone, rules, now,
	).Scan(&cfg.Version)
	if err != nil {
		return nil, qerrors.Unavailable("upsert feature gate: " + err.Error())
	}

	if err := c.publishSnapshot(ctx, cfg.ExperimentID); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetFeatureGate loads an experiment's gate config.
func (c *Catalog) GetFeatureGate(ctx context.Context, experimentID string) (*domain.FeatureGate, error) {
	var (
		cfg                      domain.FeatureGate
		defaultArm               *string
		scheduleStart, scheduleEnd *time.Time
		activeStart, activeEnd   *int64
		rules                    []byte
	)
	cfg.ExperimentID = experimentID
	err := c.pool.QueryRow(ctx,
		`SELECT enabled, rollout_percentage, default_arm_id, schedule_start, schedule_end,
		        active_hours_start, active_hours_end, active_hours_tz, rules, version
		 FROM feature_gates WHERE experiment_id = $1`, experimentID,
	).Scan(&cfg.Enabled, &cfg.RolloutPercentage, &defaultArm, &scheduleStart, &scheduleEnd,
		&activeStart, &activeEnd, &cfg.ActiveHours.Timezone, &rules, &cfg.Version)
	if err != nil {
		return nil, wrapNotFound(err, "feature gate not found: "+experimentID)
	}

	if defaultArm != nil {
		cfg.DefaultArmRef = *defaultArm
	}
	cfg.Schedule = domain.Schedule{Start: scheduleStart, End: scheduleEnd}
	if activeStart != nil {
		d := time.Duration(*activeStart)
		cfg.ActiveHours.Start = &d
	}
	if activeEnd != nil {
		d := time.Duration(*activeEnd)
		cfg.ActiveHours.End = &d
	}
	_ = json.Unmarshal(rules, &cfg.Rules)
	return &cfg, nil
}

// DeleteFeatureGate removes an experiment's gate config, leaving the
// experiment itself and its snapshot (now unconditionally proceeding
// to the bandit) intact.
func (c *Catalog) DeleteFeatureGate(ctx context.Context, experimentID string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM feature_gates WHERE experiment_id = $1`, experimentID)
	if err != nil {
		return qerrors.Unavailable("delete feature gate: " + err.Error())
	}
	if tag.RowsAffected() == 0 {
		return qerrors.NotFound("feature gate not found: " + experimentID)
	}
	return nil
}
