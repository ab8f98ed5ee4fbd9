package quality

import (
	"strings"

	"horse.fit/trustwire/internal/evidence"
)

// Witness is an aggregator article in the same cluster that may corroborate another
// member's headline. Host is the publisher host the aggregator link resolved to.
type Witness struct {
	Host    string
	Title   string
	Snippet string
}

// CrossVerification is the outcome of matching one headline against the witnesses.
type CrossVerification struct {
	Matched int
	Domains int
	Boost   int
}

// CrossVerify counts the witnesses whose title or snippet matches title and the
// distinct publisher domains among them. Google hosts and Naver republications are
// not independent and never count.
func (s *Scorer) CrossVerify(title string, witnesses []Witness) CrossVerification {
	var out CrossVerification
	if strings.TrimSpace(title) == "" || len(witnesses) == 0 {
		return out
	}

	domains := make(map[string]struct{}, len(witnesses))
	for _, w := range witnesses {
		host := strings.ToLower(strings.TrimSpace(w.Host))
		if host == "" || strings.Contains(host, "google.") || strings.Contains(host, "naver.com") {
			continue
		}
		similarity := max(evidence.TitleSimilarity(title, w.Title), evidence.TitleSimilarity(title, w.Snippet))
		if similarity < s.cfg.CrossVerifyThreshold {
			continue
		}
		out.Matched++
		domains[host] = struct{}{}
	}
	out.Domains = len(domains)
	out.Boost = s.cfg.CrossVerifyBoost(out.Domains)
	return out
}

// CrossVerifyBoost is the score bonus for corroboration by domains distinct
// publishers: one, two, then three or more.
func (c Config) CrossVerifyBoost(domains int) int {
	switch {
	case domains <= 0:
		return 0
	case domains == 1:
		return c.CrossVerifyBoostOne
	case domains == 2:
		return c.CrossVerifyBoostTwo
	default:
		return c.CrossVerifyBoostMax
	}
}
