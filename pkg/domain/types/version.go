package types

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
)

// AppVersion is the version of relman itself, injected at build time.
var AppVersion = "dev"

// ReleaseBranchPrefix is the prefix of release branches ("release/v1.2.3").
const ReleaseBranchPrefix = "release"

// VersionRegex matches release version strings like v1.2, v1.2.3 and
// v1.2.3-rc.4.
var VersionRegex = regexp.MustCompile(`v\d+\.\d+(?:\.\d+)?(?:-rc\.\d+)?`)

// ReleaseBranchRegex matches release branch names.
var ReleaseBranchRegex = regexp.MustCompile(ReleaseBranchPrefix + `/` + VersionRegex.String())

var versionParseRegex = regexp.MustCompile(`^v(\d+)\.(\d+)(?:\.(\d+))?(?:-rc\.(\d+))?$`)

// Version is a semantic release version. RC is 0 for a finished release;
// release candidates are numbered starting at 1.
type Version struct {
	Major int
	Minor int
	Patch int
	RC    int
}

// ParseVersion parses a version string like "v1.2.3-rc.4".
func ParseVersion(s string) (Version, error) {
	m := versionParseRegex.FindStringSubmatch(s)
	if m == nil {
		return Version{}, goerr.New("could not parse version", goerr.V("version", s))
	}
	var v Version
	var err error
	if v.Major, err = component(m[1], s); err != nil {
		return Version{}, err
	}
	if v.Minor, err = component(m[2], s); err != nil {
		return Version{}, err
	}
	if m[3] != "" {
		if v.Patch, err = component(m[3], s); err != nil {
			return Version{}, err
		}
	}
	if m[4] != "" {
		if v.RC, err = component(m[4], s); err != nil {
			return Version{}, err
		}
	}
	return v, nil
}

// component converts one digit run. The parse regex admits digit runs of
// any length, so overflow must surface as a parse error.
func component(digits, version string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, goerr.Wrap(err, "version component out of range", goerr.V("version", version))
	}
	return n, nil
}

// IsRC reports whether the version is a release candidate.
func (v Version) IsRC() bool {
	return v.RC > 0
}

func (v Version) String() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.IsRC() {
		s += fmt.Sprintf("-rc.%d", v.RC)
	}
	return s
}

// Less orders versions by major, minor, patch, then RC number. A finished
// release sorts after all release candidates of the same patch version.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	if v.Patch != other.Patch {
		return v.Patch < other.Patch
	}
	if !v.IsRC() {
		return false
	}
	if !other.IsRC() {
		return true
	}
	return v.RC < other.RC
}
