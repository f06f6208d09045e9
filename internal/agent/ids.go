package agent

import "github.com/google/uuid"

// newEphemeralSuffix returns a short unique suffix for per-invocation
// worker session names, so concurrent calls to the same worker tool never
// collide on the same agent name.
func newEphemeralSuffix() string {
	return uuid.NewString()
}
