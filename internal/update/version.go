package update

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a git-style semantic version: major.minor.patch plus an
// optional count of commits since the tagged release. Immutable value type.
type Version struct {
	Major   uint64
	Minor   uint64
	Patch   uint64
	Commits uint64
}

// ParseVersion parses "major.minor.patch" with an optional "+commits"
// suffix. Returns ErrMalformedVersion for anything else.
func ParseVersion(s string) (Version, error) {
	base, suffix, hasSuffix := strings.Cut(s, "+")

	parts := strings.Split(base, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}

	var nums [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}

	if hasSuffix {
		commits, err := strconv.ParseUint(suffix, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
		}
		v.Commits = commits
	}

	return v, nil
}

// String returns the canonical form: "1.2.3", or "1.2.3+4" when the
// commit count is nonzero.
func (v Version) String() string {
	if v.Commits == 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Patch, v.Commits)
}

// Compare returns -1, 0, or 1 ordering by major, then minor, then patch,
// then commits.
func (v Version) Compare(o Version) int {
	pairs := [4][2]uint64{
		{v.Major, o.Major},
		{v.Minor, o.Minor},
		{v.Patch, o.Patch},
		{v.Commits, o.Commits},
	}
	for _, p := range pairs {
		switch {
		case p[0] < p[1]:
			return -1
		case p[0] > p[1]:
			return 1
		}
	}
	return 0
}

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}
