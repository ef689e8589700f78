package container

// Option tunes which parts of the container are started.
type Option func(*options)

type options struct {
	workers    bool
	watchRules bool
}

func defaultOptions() options {
	return options{
		workers:    true,
		watchRules: true,
	}
}

// WithoutWorkers skips the periodic sweep workers. One-shot commands use it.
func WithoutWorkers() Option {
	return func(o *options) { o.workers = false }
}

// WithoutRuleWatch loads the rules file once and ignores later edits.
func WithoutRuleWatch() Option {
	return func(o *options) { o.watchRules = false }
}
