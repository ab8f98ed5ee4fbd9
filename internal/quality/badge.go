package quality

import "strings"

// Badge is the tri-state trust indicator derived from a quality score.
type Badge string

const (
	BadgeNone Badge = ""
	BadgeGood Badge = "good"
	BadgeWarn Badge = "warn"
	BadgeBad  Badge = "bad"
)

// Markers used on the external scorer protocol.
const (
	MarkerGood = "\u2705"
	MarkerWarn = "\u26a0\ufe0f"
	MarkerBad  = "\u274c"
)

// Rank orders badges for tie-breaks: good > warn > bad > unscored.
func (b Badge) Rank() int {
	switch b {
	case BadgeGood:
		return 3
	case BadgeWarn:
		return 2
	case BadgeBad:
		return 1
	default:
		return 0
	}
}

func (b Badge) Valid() bool {
	return b.Rank() > 0
}

// Marker renders the badge as its protocol marker.
func (b Badge) Marker() string {
	switch b {
	case BadgeGood:
		return MarkerGood
	case BadgeWarn:
		return MarkerWarn
	case BadgeBad:
		return MarkerBad
	default:
		return ""
	}
}

// ParseBadge accepts protocol markers as well as the persisted names.
func ParseBadge(raw string) Badge {
	switch strings.TrimSpace(raw) {
	case MarkerGood, string(BadgeGood):
		return BadgeGood
	case MarkerWarn, "\u26a0", string(BadgeWarn):
		return BadgeWarn
	case MarkerBad, string(BadgeBad):
		return BadgeBad
	default:
		return BadgeNone
	}
}

// Worst returns the lowest-ranked valid badge, or BadgeNone if none are valid.
func Worst(badges ...Badge) Badge {
	worst := BadgeNone
	for _, badge := range badges {
		if !badge.Valid() {
			continue
		}
		if worst == BadgeNone || badge.Rank() < worst.Rank() {
			worst = badge
		}
	}
	return worst
}
