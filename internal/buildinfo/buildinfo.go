package buildinfo

import "time"

// Set via -ldflags at build time, e.g.
// -X github.com/xelth-com/odoobridge/internal/buildinfo.CommitHash=abc1234
var (
	Version    = "dev"
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

// Info is the build metadata reported by /health and the version command
type Info struct {
	Version    string `json:"version"`
	BuildTime  string `json:"build_time,omitempty"`
	CommitHash string `json:"commit,omitempty"`
	StartedAt  string `json:"started_at"`
}

// Get returns the build metadata of the running binary
func Get() Info {
	return Info{Version: Version, BuildTime: BuildTime, CommitHash: CommitHash, StartedAt: StartTime}
}

func (i Info) String() string {
	s := "odoobridge " + i.Version
	if i.CommitHash != "" {
		s += " (" + i.CommitHash + ")"
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}
