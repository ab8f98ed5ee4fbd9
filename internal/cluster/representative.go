package cluster

import (
	"sort"
	"time"

	"horse.fit/trustwire/internal/quality"
)

// Member is a cluster member considered for representative.
type Member struct {
	ID          int64
	PublishedAt *time.Time
	// Score is nil when the member was not scored in the current pass.
	Score *int
	Badge quality.Badge
}

// PickRepresentative returns the id of the canonical member: the highest score, then
// the better badge, then the most recent publication (unknown last), then the smaller
// id. When no member carries a score the most recently published member wins. It
// returns 0 for an empty slice.
func PickRepresentative(members []Member) int64 {
	if len(members) == 0 {
		return 0
	}

	scored := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Score != nil {
			scored = append(scored, m)
		}
	}

	if len(scored) == 0 {
		ordered := append([]Member(nil), members...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return newerFirst(ordered[i], ordered[j])
		})
		return ordered[0].ID
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if *a.Score != *b.Score {
			return *a.Score > *b.Score
		}
		if a.Badge.Rank() != b.Badge.Rank() {
			return a.Badge.Rank() > b.Badge.Rank()
		}
		return newerFirst(a, b)
	})
	return scored[0].ID
}

func newerFirst(a, b Member) bool {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
	case a.PublishedAt == nil:
		return false
	case b.PublishedAt == nil:
		return true
	case !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.After(*b.PublishedAt)
	}
	return a.ID < b.ID
}
