package instopt

import "github.com/tessera-flow/tessera/engine/pkg/api"

type (
	// Options contains optional parameters for starting a workflow instance
	Options struct {
		Parameters api.Args
		InstanceID api.InstanceID
	}

	// Applier mutates Options during instance start
	Applier func(*Options)
)

// DefaultOptions returns an Options instance with defaults applied
func DefaultOptions(apps ...Applier) *Options {
	opt := &Options{
		Parameters: api.Args{},
	}
	ApplyOptions(opt, apps...)
	return opt
}

// ApplyOptions applies option appliers in order
func ApplyOptions(opt *Options, apps ...Applier) {
	for _, app := range apps {
		app(opt)
	}
}

// WithParameters sets the workflow parameters supplied by the caller
func WithParameters(params api.Args) Applier {
	return func(opt *Options) {
		if params == nil {
			params = api.Args{}
		}
		opt.Parameters = params
	}
}

// WithInstanceID requests a specific instance ID instead of a generated one
func WithInstanceID(id api.InstanceID) Applier {
	return func(opt *Options) {
		opt.InstanceID = id
	}
}
