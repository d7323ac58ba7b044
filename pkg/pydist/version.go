// SPDX-License-Identifier: MPL-2.0

package pydist

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
var ErrInvalidVersion = errors.New("invalid version")

var versionRe = regexp.MustCompile(`(?i)^v?(?:(\d+)!)?(\d+(?:\.\d+)*)` +
	`(?:[._-]?(a|alpha|b|beta|c|rc|pre|preview)[._-]?(\d*))?` +
	`(?:[._-]?(post|rev|r)[._-]?(\d*))?` +
	`(?:[._-]?(dev)[._-]?(\d*))?` +
	`(?:\+([a-z0-9]+(?:[._-][a-z0-9]+)*))?$`)

const (
	noSegment = -1

	preRankAlpha = 0
	preRankBeta  = 1
	preRankRC    = 2
	preRankFinal = 3
)

type (
	// Version is a parsed distribution version. It covers the ordering
	// rules the materializer needs to pick the highest acceptable
	// candidate: numeric release segments with an optional epoch,
	// pre-release phase (a/b/rc), post-release and dev-release numbers,
	// and a local identifier that only breaks ties.
	Version struct {
		Epoch   int
		Release []int
		// Pre is the normalized pre-release phase ("a", "b", "rc") or
		// empty for a final release. PreNum is its number.
		Pre    string
		PreNum int
		// Post and Dev are noSegment when absent.
		Post  int
		Dev   int
		Local string
		Raw   string
	}

	// InvalidVersionError is returned when a version string cannot be
	// parsed. It wraps ErrInvalidVersion for errors.Is() compatibility.
	InvalidVersionError struct {
		Value string
	}
)

// Error implements the error interface for InvalidVersionError.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// ParseVersion parses a version string. Phase aliases normalize to their
// canonical form (alpha→a, beta→b, c/pre/preview→rc) so that equivalent
// spellings compare equal.
func ParseVersion(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(s)))
	if m == nil {
		return Version{}, &InvalidVersionError{Value: s}
	}

	v := Version{Post: noSegment, Dev: noSegment, Raw: s}
	if m[1] != "" {
		v.Epoch, _ = strconv.Atoi(m[1])
	}
	for _, part := range strings.Split(m[2], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, &InvalidVersionError{Value: s}
		}
		v.Release = append(v.Release, n)
	}
	if m[3] != "" {
		switch m[3] {
		case "a", "alpha":
			v.Pre = "a"
		case "b", "beta":
			v.Pre = "b"
		default:
			v.Pre = "rc"
		}
		v.PreNum = atoiOrZero(m[4])
	}
	if m[5] != "" {
		v.Post = atoiOrZero(m[6])
	}
	if m[7] != "" {
		v.Dev = atoiOrZero(m[8])
	}
	v.Local = m[9]
	return v, nil
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

// String returns the original spelling the version was parsed from.
func (v Version) String() string { return v.Raw }

// IsPrerelease reports whether the version is a pre-release or
// dev-release. The materializer skips these candidates unless a
// constraint names one explicitly.
func (v Version) IsPrerelease() bool { return v.Pre != "" || v.Dev != noSegment }

// Compare returns -1, 0 or +1 ordering v against o. Ordering follows the
// packaging convention: dev < a < b < rc < final < post within one
// release, and the local identifier breaks remaining ties.
func (v Version) Compare(o Version) int {
	if c := cmpInt(v.Epoch, o.Epoch); c != 0 {
		return c
	}
	if c := cmpRelease(v.Release, o.Release); c != 0 {
		return c
	}
	vr, vn := v.preKey()
	or, on := o.preKey()
	if c := cmpInt(vr, or); c != 0 {
		return c
	}
	if c := cmpInt(vn, on); c != 0 {
		return c
	}
	if c := cmpInt(v.Post, o.Post); c != 0 {
		return c
	}
	if c := cmpInt(devKey(v.Dev), devKey(o.Dev)); c != 0 {
		return c
	}
	return strings.Compare(v.Local, o.Local)
}

// preKey ranks the pre-release phase. A dev-only version sorts below any
// pre-release of the same release; a final release sorts above all of them.
func (v Version) preKey() (rank, num int) {
	switch {
	case v.Pre == "" && v.Post == noSegment && v.Dev != noSegment:
		return noSegment, 0
	case v.Pre == "":
		return preRankFinal, 0
	case v.Pre == "a":
		return preRankAlpha, v.PreNum
	case v.Pre == "b":
		return preRankBeta, v.PreNum
	default:
		return preRankRC, v.PreNum
	}
}

// devKey maps an absent dev segment above every present one (1.0a1.dev1
// sorts before 1.0a1).
func devKey(dev int) int {
	if dev == noSegment {
		return int(^uint(0) >> 1)
	}
	return dev
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpRelease(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if c := cmpInt(av, bv); c != 0 {
			return c
		}
	}
	return 0
}
