package presence

import "time"

// Option configures a Registry at construction, grounded on the teacher's
// functional-options style in internal/domain/registry/options.go.
type Option func(*Registry)

// WithEvictionInterval configures how often the janitor sweeps for idle
// cells.
func WithEvictionInterval(d time.Duration) Option {
	return func(r *Registry) { r.evictionInterval = d }
}

// WithIdleTimeout configures the quiet period after which a cell with no
// active session becomes eligible for reclamation.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithMailboxSize sets the per-user outbound buffer capacity.
func WithMailboxSize(size int) Option {
	return func(r *Registry) { r.mailboxSize = size }
}
