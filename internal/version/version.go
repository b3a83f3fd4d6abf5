// Package version provides the application version.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/pomod-sh/pomod/internal/version.Version=1.2.3" ./cmd/pomod
//
// Defaults to "dev" for local development builds.
var Version = "dev"

// CheckSkew compares the client and daemon versions and returns a warning
// message when they differ in major or minor version, meaning the wire
// protocol may have drifted. Dev builds and unparsable versions are never
// flagged. An empty string means no warning.
func CheckSkew(clientVersion, daemonVersion string) string {
	if clientVersion == daemonVersion {
		return ""
	}

	client, err := semver.NewVersion(clientVersion)
	if err != nil {
		return ""
	}
	daemon, err := semver.NewVersion(daemonVersion)
	if err != nil {
		return ""
	}

	if client.Major() != daemon.Major() || client.Minor() != daemon.Minor() {
		return fmt.Sprintf("client %s and daemon %s differ; restart the daemon after upgrading", clientVersion, daemonVersion)
	}
	return ""
}
