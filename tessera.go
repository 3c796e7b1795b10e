package engine

// Name and Version identify the service in logs and health responses.
// Version is overridden at build time with -ldflags
var (
	Name    = "tessera"
	Version = "dev"
)
