package metrics

import (
	"regexp"
	"strconv"

	"github.com/aiops/fleet-intel/internal/apperr"
)

var uptimeRe = regexp.MustCompile(`(?:(\d+)w)?(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?`)

// ParseUptime converts a human-readable uptime string in the form
// "NwNdNhNmNs" (any subset of components, in that order) into seconds,
// as produced by RouterOS-style /system/resource responses (§4.3).
func ParseUptime(s string) (int64, error) {
	m := uptimeRe.FindStringSubmatch(s)
	if m == nil || allEmpty(m[1:]) {
		return 0, apperr.New(apperr.Validation, "metrics.ParseUptime", "unrecognized uptime format: "+s)
	}

	var total int64
	weights := []int64{7 * 24 * 3600, 24 * 3600, 3600, 60, 1}
	for i, group := range m[1:] {
		if group == "" {
			continue
		}
		n, err := strconv.ParseInt(group, 10, 64)
		if err != nil {
			return 0, apperr.Wrap(apperr.Validation, "metrics.ParseUptime", "invalid uptime component", err)
		}
		total += n * weights[i]
	}
	return total, nil
}

func allEmpty(groups []string) bool {
	for _, g := range groups {
		if g != "" {
			return false
		}
	}
	return true
}
