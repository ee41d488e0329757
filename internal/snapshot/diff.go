package snapshot

import (
	"regexp"
	"strings"

	"github.com/aiops/fleet-intel/internal/models"
)

var (
	dynamicFieldRe = regexp.MustCompile(`\b(rx-byte|tx-byte|rx-packet|tx-packet|bytes|packets|uptime|last-link-(down|up)-time)=\S+`)
	identifierRes  = []*regexp.Regexp{
		regexp.MustCompile(`name=("[^"]*"|\S+)`),
		regexp.MustCompile(`address=("[^"]*"|\S+)`),
		regexp.MustCompile(`\.id=("[^"]*"|\S+)`),
		regexp.MustCompile(`comment=("[^"]*"|\S+)`),
	}
)

// normalizeLine strips dynamic counter fields so unrelated churn does
// not register as a configuration change.
func normalizeLine(line string) string {
	return strings.TrimSpace(dynamicFieldRe.ReplaceAllString(line, ""))
}

// lineIdentifier extracts the best available identifier
// (name=/address=/.id=/comment=) for keying a config line, or empty if
// none is present.
func lineIdentifier(line string) string {
	for _, re := range identifierRes {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// linePath returns the leading "/menu/path" token of a RouterOS-style
// export line, or "" for a line with no path (e.g. a bare property
// continuation line).
func linePath(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return ""
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// keyedLines splits a config export into a map of <path>:<identifier>
// -> normalized line, skipping comments, blank lines and bare path
// header lines (a "/menu path" line with no key=value field). currentPath
// tracks the most recent "/menu/path" header so indented property
// lines (which don't repeat the path) key correctly.
func keyedLines(config string) map[string]string {
	out := make(map[string]string)
	currentPath := ""

	for _, raw := range strings.Split(config, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if p := linePath(line); p != "" {
			currentPath = p
			if !strings.Contains(line, "=") {
				continue
			}
		}
		norm := normalizeLine(line)
		if norm == "" {
			continue
		}
		key := currentPath + ":" + lineIdentifier(norm)
		out[key] = norm
	}
	return out
}

// diffConfigs computes additions/modifications/deletions between two
// full configuration exports (§4.9 "Diff algorithm").
func diffConfigs(previous, current string) models.ConfigDiff {
	before := keyedLines(previous)
	after := keyedLines(current)

	diff := models.ConfigDiff{
		Additions:     make(map[string]string),
		Modifications: make(map[string]string),
		Deletions:     make(map[string]string),
	}

	for key, line := range after {
		prevLine, existed := before[key]
		switch {
		case !existed:
			diff.Additions[key] = line
		case prevLine != line:
			diff.Modifications[key] = line
		}
	}
	for key, line := range before {
		if _, stillPresent := after[key]; !stillPresent {
			diff.Deletions[key] = line
		}
	}
	return diff
}
