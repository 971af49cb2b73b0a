package scan

import (
	"regexp"
	"strings"
	"time"
)

var (
	macLinePattern    = regexp.MustCompile(`(?i)([0-9a-f]{1,2}[:-]){5}([0-9a-f]{1,2})`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

func durationToMillis(d time.Duration) float64 {
	return d.Seconds() * 1000
}

// normaliseMAC returns mac as six upper-case, colon separated octets, or ""
// if it is not a hardware address. Bare 12-digit hex is accepted too.
func normaliseMAC(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if len(raw) == 12 && hexDigits(raw) == raw {
		return raw[0:2] + ":" + raw[2:4] + ":" + raw[4:6] + ":" + raw[6:8] + ":" + raw[8:10] + ":" + raw[10:12]
	}
	raw = strings.ReplaceAll(strings.ReplaceAll(raw, "-", ":"), ".", ":")
	match := macLinePattern.FindString(raw)
	if match == "" {
		return ""
	}
	parts := strings.Split(match, ":")
	if len(parts) != 6 {
		return ""
	}
	for i := range parts {
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}
	return strings.Join(parts, ":")
}

// dashedIP turns 192.168.1.5 into 192-168-1-5 for use inside identifiers.
func dashedIP(ip string) string {
	return strings.ReplaceAll(ip, ".", "-")
}
