package version

import "fmt"

// Set at build time with -ldflags "-X bosun/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

func GetInfo() Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
}

// ShortCommit returns the first 7 characters of the commit hash.
func ShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// String renders "bosun <version> (<commit>, <date>)" for CLI output.
func String() string {
	return fmt.Sprintf("bosun %s (%s, %s)", Version, ShortCommit(), BuildDate)
}
