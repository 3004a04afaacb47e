package buildinfo

import "fmt"

// Version info stamped in at build time via -ldflags.
var (
	Version    = "dev"
	CommitHash = "n/a"
	BuildDate  = "n/a"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// Get returns the build info of this binary.
func Get() BuildInfo {
	return BuildInfo{Version: Version, CommitHash: CommitHash, BuildDate: BuildDate}
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
