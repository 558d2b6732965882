// Package version holds the channel and version value types used to pick a
// concrete jormungandr release: channel families with optional nightly dates,
// semver parsing, and the version constraints built from CLI input.
package version

import (
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver"
)

const dateFormat = "20060102"

// Built-in channel families. Other names are accepted by the parser and
// validated later against the channels the release index actually declares.
const (
	Stable  = "stable"
	Beta    = "beta"
	Nightly = "nightly"
)

// Channel identifies a network track, optionally pinned to a publish date.
// Only the nightly family accepts a date suffix.
type Channel struct {
	Name string
	Date time.Time
}

// ParseChannel parses channel specs such as "stable", "itn" or
// "nightly-20240101".
func ParseChannel(s string) (Channel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Channel{}, fmt.Errorf("empty channel name")
	}

	name := s
	var date time.Time
	if rest, ok := strings.CutPrefix(s, Nightly+"-"); ok {
		d, err := time.Parse(dateFormat, rest)
		if err != nil {
			return Channel{}, fmt.Errorf("invalid nightly date %q: %w", rest, err)
		}
		name, date = Nightly, d
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return Channel{}, fmt.Errorf("invalid channel name %q", s)
		}
	}
	if name != Nightly && !date.IsZero() {
		return Channel{}, fmt.Errorf("channel %q cannot carry a date", name)
	}
	return Channel{Name: name, Date: date}, nil
}

func (c Channel) String() string {
	if c.Dated() {
		return c.Name + "-" + c.Date.Format(dateFormat)
	}
	return c.Name
}

// Dated reports whether the channel is pinned to a publish date.
func (c Channel) Dated() bool {
	return !c.Date.IsZero()
}

// SameFamily reports whether two channels belong to the same family; a dated
// nightly is a refinement of the bare nightly family.
func (c Channel) SameFamily(other Channel) bool {
	return c.Name == other.Name
}

// Parse parses a version string, tolerating a leading v/V and missing
// minor/patch components.
func Parse(ver string) (semver.Version, error) {
	ver = strings.TrimPrefix(ver, "v")
	ver = strings.TrimPrefix(ver, "V")
	return semver.ParseTolerant(ver)
}

// MustParse is for tests and trusted literals.
func MustParse(ver string) semver.Version {
	v, err := Parse(ver)
	if err != nil {
		panic(err)
	}
	return v
}

// Constraint narrows resolution to an explicit version. The zero value is
// unconstrained, meaning "latest compatible".
type Constraint struct {
	exact *semver.Version
}

// Any returns the unconstrained constraint.
func Any() Constraint {
	return Constraint{}
}

// Exact returns a constraint matching only the given version.
func Exact(v semver.Version) Constraint {
	return Constraint{exact: &v}
}

// ParseConstraint parses a -v style argument into an exact constraint.
func ParseConstraint(s string) (Constraint, error) {
	v, err := Parse(s)
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return Exact(v), nil
}

// IsAny reports whether the constraint leaves the version free.
func (c Constraint) IsAny() bool {
	return c.exact == nil
}

// Version returns the pinned version; only valid when IsAny is false.
func (c Constraint) Version() semver.Version {
	return *c.exact
}

func (c Constraint) Matches(v semver.Version) bool {
	if c.exact == nil {
		return true
	}
	return c.exact.EQ(v)
}

func (c Constraint) String() string {
	if c.exact == nil {
		return "latest"
	}
	return c.exact.String()
}
