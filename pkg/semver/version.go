// SPDX-License-Identifier: MPL-2.0

package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	xsemver "golang.org/x/mod/semver"
)

// identifier matches one dot-separated pre-release identifier.
const identifier = `(?:0|[1-9][0-9]*|[0-9]*[A-Za-z-][0-9A-Za-z-]*)`

// versionRegex matches a full version. A leading "v" or "=" is tolerated the
// way descriptor files in the wild spell versions.
var versionRegex = regexp.MustCompile(
	`^[v=\s]*(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)` +
		`(?:-(` + identifier + `(?:\.` + identifier + `)*))?` +
		`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?\s*$`)

// Version is a parsed semantic version.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	// Prerelease holds the dot-separated pre-release identifiers, if any.
	Prerelease []string
	// Build holds build metadata identifiers. Build metadata never affects ordering.
	Build []string
}

// Parse parses a full MAJOR.MINOR.PATCH version string.
func Parse(s string) (Version, error) {
	m := versionRegex.FindStringSubmatch(s)
	if m == nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	var v Version
	var err error
	if v.Major, err = strconv.ParseUint(m[1], 10, 64); err != nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	if v.Minor, err = strconv.ParseUint(m[2], 10, 64); err != nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	if v.Patch, err = strconv.ParseUint(m[3], 10, 64); err != nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	if m[4] != "" {
		v.Prerelease = strings.Split(m[4], ".")
	}
	if m[5] != "" {
		v.Build = strings.Split(m[5], ".")
	}
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Valid reports whether s parses as a full version.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the canonical form without the leading "v".
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		s += "-" + strings.Join(v.Prerelease, ".")
	}
	if len(v.Build) > 0 {
		s += "+" + strings.Join(v.Build, ".")
	}
	return s
}

// IsPrerelease reports whether v carries a pre-release tag.
func (v Version) IsPrerelease() bool { return len(v.Prerelease) > 0 }

// SameCore reports whether v and o share major.minor.patch.
func (v Version) SameCore(o Version) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch
}

// Compare returns -1, 0 or 1 by semantic-version precedence.
// Pre-release identifier ordering is delegated to golang.org/x/mod/semver.
func (v Version) Compare(o Version) int {
	return xsemver.Compare(v.goVersion(), o.goVersion())
}

// goVersion renders v in the "vX.Y.Z[-pre]" form golang.org/x/mod/semver expects.
func (v Version) goVersion() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		s += "-" + strings.Join(v.Prerelease, ".")
	}
	return s
}

// Max returns the highest of the given version strings that parse.
// The boolean is false when no string is a valid version.
func Max(versions []string) (string, bool) {
	best := ""
	var bestV Version
	for _, s := range versions {
		v, err := Parse(s)
		if err != nil {
			continue
		}
		if best == "" || v.Compare(bestV) > 0 {
			best, bestV = s, v
		}
	}
	return best, best != ""
}
