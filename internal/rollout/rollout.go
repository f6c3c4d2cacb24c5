// Package rollout computes the stable, non-cryptographic hash the
// feature gate uses for percentage rollouts. The hash must stay stable
// across processes and restarts; do not change it without reshuffling
// every live rollout population.
package rollout

import "github.com/OneOfOne/xxhash"

// Bucket returns contextID's stable rollout bucket in [0,100).
func Bucket(contextID string) int {
	h := xxhash.ChecksumString64(contextID)
	return int(h % 100)
}

// InRollout reports whether contextID falls within the first pct percent
// of the rollout population (pct in [0,100]).
func InRollout(contextID string, pct int) bool {
	return Bucket(contextID) < pct
}
