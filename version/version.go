// Package version reports qbridge build metadata stamped in via -ldflags:
//
//	go build -ldflags "-X github.com/teranos/qbridge/version.Version=v1.4.0 \
//	  -X github.com/teranos/qbridge/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// FallbackServerVersion is what serverVersion reports to the Web Connector
// for untagged builds.
const FallbackServerVersion = "1.0.0"

var (
	// Version is the release tag, e.g. v1.4.0; "dev" when untagged
	Version = "dev"

	// CommitHash is the git commit the binary was built from
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"
)

// Info is the build metadata shown by `qbridge version`, /health and the
// websocket snapshot.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current build metadata
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Release reports whether the binary was built from a version tag
func (i Info) Release() bool {
	return i.Version != "" && i.Version != "dev"
}

// ServerVersion is the version string answered to the Web Connector's
// serverVersion call: the tag without its "v", or FallbackServerVersion.
// QBWC shows it in its log and compares nothing against it.
func (i Info) ServerVersion() string {
	if !i.Release() {
		return FallbackServerVersion
	}
	return strings.TrimPrefix(i.Version, "v")
}

// String returns a human-readable version line
func (i Info) String() string {
	name := "dev"
	if i.Release() {
		name = i.Version
	}
	return fmt.Sprintf("qbridge %s (commit %s, built %s)", name, i.Short(), i.BuildTime)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
