// Package version exposes the build version of ephemerisd. The variables
// are intended to be overridden at link time.
package version

import "fmt"

var (
	gitCommit = "unknown"
	buildDate = "unknown"
	semver    = "0.3.0"
)

// Version returns the version string of this build.
func Version() string {
	return fmt.Sprintf("ephemerisd/v%s commit=%s built=%s", semver, gitCommit, buildDate)
}

// SemanticVersion returns the semantic version of this build.
func SemanticVersion() string {
	return semver
}
