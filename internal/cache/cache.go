// Package cache implements the decision cache: a narrow get/set capability
// satisfied by three interchangeable backends (no-op, in-process LRU, and
// remote Redis), so callers never branch on which backend is in play.
package cache

import "context"

// DecisionCache is the capability every backend satisfies. Get reports
// whether the key was present; Set is fire-and-forget from the caller's
// point of view — backends absorb their own runtime errors.
type DecisionCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}
