package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// IllegalVersionError is returned when a version string reported by a remote
// tool cannot be interpreted.
type IllegalVersionError struct {
	Version string
}

func (e *IllegalVersionError) Error() string {
	return fmt.Sprintf("illegal version string: %q", e.Version)
}

// versionRe accepts dotted numbers with an optional release suffix, as
// printed by "drbdadm --version", "crmd --version" and "virsh --version".
var versionRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)(?:[-_~+].*|rc\d+.*)?$`)

func parse(v string) ([]int, error) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return nil, &IllegalVersionError{Version: v}
	}
	parts := strings.Split(m[1], ".")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &IllegalVersionError{Version: v}
		}
		nums[i] = n
	}
	return nums, nil
}

// Compare compares two version strings component by component. Missing
// trailing components count as zero, so "8.4" equals "8.4.0".
//
// It returns -1, 0 or 1 like strings.Compare.
func Compare(a, b string) (int, error) {
	va, err := parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := parse(b)
	if err != nil {
		return 0, err
	}

	n := len(va)
	if len(vb) > n {
		n = len(vb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(va) {
			x = va[i]
		}
		if i < len(vb) {
			y = vb[i]
		}
		if x < y {
			return -1, nil
		}
		if x > y {
			return 1, nil
		}
	}
	return 0, nil
}

// AtLeast reports whether have >= want.
func AtLeast(have, want string) (bool, error) {
	c, err := Compare(have, want)
	if err != nil {
		return false, err
	}
	return c >= 0, nil
}
