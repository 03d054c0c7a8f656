package readback

// InstanceOption is a functional option used to configure an Instance when it is spawned.
type InstanceOption func(*instanceConfig)

type instanceConfig struct {
	limit            Limit
	removeOnComplete bool
}

// WithLimit sets the repeat policy of the instance.
//
// Parameters:
//   - limit: Finite(n) or Infinite()
//
// Returns:
//   - InstanceOption: a function that applies the limit
func WithLimit(limit Limit) InstanceOption {
	return func(c *instanceConfig) {
		c.limit = limit
	}
}

// WithRemoveOnComplete sets whether the instance terminates once a finite limit is exhausted.
// Without it an exhausted instance stays idle with its counter at zero.
//
// Parameters:
//   - remove: true to terminate on exhaustion
//
// Returns:
//   - InstanceOption: a function that applies the flag
func WithRemoveOnComplete(remove bool) InstanceOption {
	return func(c *instanceConfig) {
		c.removeOnComplete = remove
	}
}
