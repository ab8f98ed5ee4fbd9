package quality

import (
	"encoding/json"
	"strings"
)

const (
	FlagLowCrossSource    = "LOW_CROSS_SOURCE"
	FlagNoEvidence        = "NO_EVIDENCE"
	FlagTitleBodyMismatch = "TITLE_BODY_MISMATCH"
)

// EncodeFlags serializes flags as a JSON array; nil encodes as "[]".
func EncodeFlags(flags []string) string {
	if len(flags) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(flags)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// DecodeFlags parses a JSON flag array. Blank or malformed text yields nil.
func DecodeFlags(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var flags []string
	if err := json.Unmarshal([]byte(trimmed), &flags); err != nil {
		return nil
	}
	return flags
}

// UnionFlags merges flag lists preserving first-seen order.
func UnionFlags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	for _, list := range lists {
		for _, flag := range list {
			flag = strings.TrimSpace(flag)
			if flag == "" {
				continue
			}
			if _, ok := seen[flag]; ok {
				continue
			}
			seen[flag] = struct{}{}
			out = append(out, flag)
		}
	}
	return out
}

// StripFlag removes flag from serialized flag text. Well-formed arrays are re-encoded;
// anything else is edited textually so unknown formats survive untouched otherwise.
func StripFlag(raw, flag string) (string, bool) {
	if !strings.Contains(raw, flag) {
		return raw, false
	}

	var flags []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &flags); err == nil {
		kept := make([]string, 0, len(flags))
		for _, f := range flags {
			if f != flag {
				kept = append(kept, f)
			}
		}
		return EncodeFlags(kept), len(kept) != len(flags)
	}

	quoted := `"` + flag + `"`
	out := raw
	for _, variant := range []string{quoted + ",", ", " + quoted, "," + quoted, quoted} {
		out = strings.ReplaceAll(out, variant, "")
	}
	return out, out != raw
}
