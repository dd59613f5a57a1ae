// Package version reports the build version of forge and forged. The CLI
// compares it with the daemon's /version to decide whether to restart it.
package version

import "strings"

// SemVer is set at build time for releases:
//
//	-ldflags "-X github.com/Oudwins/taskforge/internals/version.SemVer=1.2.3"
var SemVer = "0.0.0-dev"

// Version is SemVer plus the build identity as metadata, for example
// 0.0.0-dev+a1b2c3d4e5f6+9f2c1a0b77de.
func Version() string {
	return withIdentity(Identity())
}

// VersionOf is Version as reported by the binary at path.
func VersionOf(path string) string {
	return withIdentity(ForBinary(path))
}

func withIdentity(id string) string {
	v := strings.TrimSpace(SemVer)
	if v == "" {
		v = "0.0.0-dev"
	}
	if id == "" || id == "unknown" {
		return v
	}
	if strings.Contains(v, "+") {
		return v + "." + id
	}
	return v + "+" + id
}
