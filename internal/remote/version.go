package remote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/hashicorp/go-version"
)

// ServerVersion is the platform version split into its numeric core.
type ServerVersion struct {
	Major, Minor, Patch int
	// Snapshot is set when any component carried a non-numeric suffix,
	// e.g. "2.42-SNAPSHOT".
	Snapshot bool
	Raw      string
}

// ParseServerVersion splits s on "." and keeps the leading digits of each
// component, dropping any suffix. A missing patch component is zero.
func ParseServerVersion(s string) (ServerVersion, error) {
	v := ServerVersion{Raw: s}
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return v, fmt.Errorf("remote: unparseable version %q", s)
	}
	nums := make([]int, 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		digits := leadingDigits(parts[i])
		if len(digits) != len(parts[i]) {
			v.Snapshot = true
		}
		if digits == "" {
			if i < 2 {
				return v, fmt.Errorf("remote: unparseable version %q", s)
			}
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return v, fmt.Errorf("remote: unparseable version %q: %w", s, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// leadingDigits returns the digit run at the start of s, so "41rc1" gives "41".
func leadingDigits(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

// Core returns the numeric version without any snapshot suffix.
func (v ServerVersion) Core() *version.Version {
	return version.Must(version.NewVersion(fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)))
}

// AtLeast reports whether the numeric core is >= floor.
func (v ServerVersion) AtLeast(floor *version.Version) bool {
	return v.Core().GreaterThanOrEqual(floor.Core())
}

func (v ServerVersion) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	return v.Core().String()
}

// SystemVersion fetches the platform version.
func (c *Client) SystemVersion(ctx context.Context) (ServerVersion, error) {
	var info struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/system/info", url.Values{"fields": {"version"}}, &info); err != nil {
		return ServerVersion{}, fmt.Errorf("remote: system info: %w", err)
	}
	return ParseServerVersion(info.Version)
}
