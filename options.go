package tardy

// Options configures a Runtime. The zero value is invalid; use NewRuntime
// with Option functions, or DefaultOptions, to build one.
type Options struct {
	// SizeTasksMax is size_tasks_max: the Scheduler's fixed task capacity.
	SizeTasksMax uint16
	// SizeAIOJobsMax is size_aio_jobs_max: the backend's fixed job
	// capacity. NewRuntime only validates SizeAIOReapMax against it; the
	// backend is constructed beforehand with its own capacity, and this
	// value is not passed to it.
	SizeAIOJobsMax uint16
	// SizeAIOReapMax is size_aio_reap_max: the maximum number of
	// completions returned by a single Reap call. Must be <= SizeAIOJobsMax.
	SizeAIOReapMax uint16
	// Logger receives diagnostic messages (task panics, task errors,
	// quiescence). Defaults to a no-op logger.
	Logger Logger
}

// DefaultOptions returns reasonable defaults, sized comfortably above what
// a handful of concurrent tasks and in-flight operations would ever need.
func DefaultOptions() Options {
	return Options{
		SizeTasksMax:   1024,
		SizeAIOJobsMax: 1024,
		SizeAIOReapMax: 256,
		Logger:         NewNoopLogger(),
	}
}

// Option mutates Options during NewRuntime construction.
type Option func(*Options)

// WithTaskCapacity sets size_tasks_max.
func WithTaskCapacity(n uint16) Option {
	return func(o *Options) { o.SizeTasksMax = n }
}

// WithJobCapacity sets size_aio_jobs_max.
func WithJobCapacity(n uint16) Option {
	return func(o *Options) { o.SizeAIOJobsMax = n }
}

// WithReapCapacity sets size_aio_reap_max.
func WithReapCapacity(n uint16) Option {
	return func(o *Options) { o.SizeAIOReapMax = n }
}

// WithLogger sets the Logger used for runtime diagnostics.
func WithLogger(l Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func (o Options) validate() error {
	if o.SizeAIOReapMax > o.SizeAIOJobsMax {
		return ErrInvalidOptions
	}
	return nil
}
