// Package version carries build metadata stamped in via ldflags:
//
//	go build -ldflags "-X github.com/offerforge/offerforge/pkg/version.Version=1.4.0"
package version

import "runtime"

// Build metadata. Unstamped builds report "dev".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns the build metadata as served by /status.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}

// UserAgent identifies outbound calls to inventory backends.
func UserAgent() string {
	return "offerforge/" + Version + " (" + runtime.GOOS + "; " + GoVersion + ")"
}
