// Package version exposes the coinsaga build identity, stamped at link time.
package version

import "runtime"

// Set via -ldflags at build time, for example:
//
//	-X github.com/coinsaga/coinsaga/pkg/version.Version=v1.2.0
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns the build identity as a map, suitable for logs and the
// version flag.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}
