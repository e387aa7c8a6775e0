package workflow

import "strings"

// ResolveAddresses returns the union of known and custom addresses for ch.
// Entries are trimmed and empty ones dropped. Emails are compared
// case-insensitively. Phone numbers are compared on their digits and
// returned in digits-only form. The first occurrence wins and keeps its
// position.
func ResolveAddresses(ch Channel, known, custom []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{known, custom} {
		for _, raw := range list {
			addr, key := normalize(ch, raw)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
	}
	return out
}

func normalize(ch Channel, raw string) (addr, key string) {
	addr = strings.TrimSpace(raw)
	if ch == ChannelWhatsApp {
		d := digits(addr)
		return d, d
	}
	return addr, strings.ToLower(addr)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsAddress(ch Channel, list []string, addr string) bool {
	_, key := normalize(ch, addr)
	if key == "" {
		return false
	}
	for _, candidate := range list {
		if _, k := normalize(ch, candidate); k == key {
			return true
		}
	}
	return false
}

// keepKnown drops selected addresses that are no longer known.
func keepKnown(ch Channel, selected, known []string) []string {
	var out []string
	for _, addr := range selected {
		if containsAddress(ch, known, addr) {
			out = append(out, addr)
		}
	}
	return out
}
