package readback

// PluginBuilderOption is a functional option used to configure a Plugin during construction.
type PluginBuilderOption func(*plugin)

// WithDefaultLimit sets the repeat policy of instances spawned without WithLimit.
// Defaults to Infinite().
//
// Parameters:
//   - limit: the default limit
//
// Returns:
//   - PluginBuilderOption: a function that applies the default
func WithDefaultLimit(limit Limit) PluginBuilderOption {
	return func(p *plugin) {
		p.defaultLimit = limit
	}
}

// WithDefaultRemoveOnComplete sets whether instances spawned without WithRemoveOnComplete
// terminate once their limit is exhausted. Defaults to false.
//
// Parameters:
//   - remove: the default flag
//
// Returns:
//   - PluginBuilderOption: a function that applies the default
func WithDefaultRemoveOnComplete(remove bool) PluginBuilderOption {
	return func(p *plugin) {
		p.defaultRemoveOnComplete = remove
	}
}

// WithStagingBudget caps the number of staging buffers alive at once. Transfers that cannot
// get a buffer are deferred to a later frame. Zero, the default, means no cap.
//
// Parameters:
//   - buffers: the maximum number of staging buffers
//
// Returns:
//   - PluginBuilderOption: a function that applies the budget
func WithStagingBudget(buffers int) PluginBuilderOption {
	return func(p *plugin) {
		p.stagingBudget = max(buffers, 0)
	}
}

// WithDecodeWorkers sets the number of workers decoding completed readbacks.
// Defaults to runtime.NumCPU().
//
// Parameters:
//   - workers: the worker count, at least 1
//
// Returns:
//   - PluginBuilderOption: a function that applies the worker count
func WithDecodeWorkers(workers int) PluginBuilderOption {
	return func(p *plugin) {
		p.decodeWorkers = workers
	}
}
