package quality

// Standing is an article's persisted quality state.
type Standing struct {
	Score *int
	Badge Badge
	Flags string
}

// CrossSourceBonus applies the corroboration bonus to an article whose cluster has more
// than one member. Scores below 100 gain the configured bonus, capped at 100, and the
// badge is re-derived; LOW_CROSS_SOURCE is stripped from the flags regardless of score.
// The second return reports whether anything changed.
func (s *Scorer) CrossSourceBonus(current Standing) (Standing, bool) {
	next := current
	changed := false

	if current.Score != nil && *current.Score < 100 {
		boosted := clampScore(*current.Score + s.cfg.CrossSourceBonus)
		next.Score = &boosted
		next.Badge = s.cfg.BadgeFor(boosted)
		changed = boosted != *current.Score || next.Badge != current.Badge
	}

	if flags, stripped := StripFlag(current.Flags, FlagLowCrossSource); stripped {
		next.Flags = flags
		changed = true
	}

	return next, changed
}
