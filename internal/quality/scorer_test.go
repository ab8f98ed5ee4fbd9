package quality

import (
	"strings"
	"testing"
)

func TestScoreCorroboratedFullyEntailedCluster(t *testing.T) {
	t.Parallel()

	body := "한국은행이 기준금리를 연 3.5%로 동결했다. 물가 상승세가 둔화됐다는 판단이다."
	members := []Member{
		{ArticleID: 1, Source: "연합뉴스", Title: "한국은행이 기준금리를 동결했다", Body: body, Summary: "한국은행이 기준금리를 동결했다."},
		{ArticleID: 2, Source: "연합뉴스", Title: "물가 상승세가 둔화", Body: body, Summary: "물가 상승세가 둔화됐다."},
		{ArticleID: 3, Source: "KBS", Title: "한국은행이 기준금리를 동결", Body: body, Summary: "한국은행이 기준금리를 연 3.5%로 동결했다."},
	}

	result := NewScorer(DefaultConfig()).Score(members)
	if result.Score != 100 {
		t.Fatalf("expected score 100, got %d (%+v)", result.Score, result)
	}
	if result.Badge != BadgeGood {
		t.Fatalf("expected good badge, got %q", result.Badge)
	}
	if len(result.Flags) != 0 {
		t.Fatalf("expected no flags, got %v", result.Flags)
	}
	if result.EntailRatio != 1 || result.Total != 3 || result.Sources != 2 {
		t.Fatalf("unexpected aggregate: ratio=%f total=%d sources=%d", result.EntailRatio, result.Total, result.Sources)
	}
	if len(result.Evidence[3]) != 1 || result.Evidence[3][0].Evidence == "" {
		t.Fatalf("expected evidence row for article 3, got %+v", result.Evidence[3])
	}
}

func TestScoreSingleUnsupportedArticle(t *testing.T) {
	t.Parallel()

	members := []Member{{
		ArticleID: 9,
		Source:    "naver",
		Title:     "서울 아파트값 상승",
		Body:      "서울 아파트값이 3주 연속 상승했다. 강남 지역 상승폭이 컸다.",
		Summary:   "정부가 새로운 규제를 발표했다. 거래량은 급감했다.",
	}}

	result := NewScorer(DefaultConfig()).Score(members)
	if result.Score != 30 {
		t.Fatalf("expected 100-60-10=30, got %d", result.Score)
	}
	if result.Badge != BadgeBad {
		t.Fatalf("expected bad badge, got %q", result.Badge)
	}
	if !result.HasFlag(FlagLowCrossSource) || !result.HasFlag(FlagNoEvidence) {
		t.Fatalf("expected LOW_CROSS_SOURCE and NO_EVIDENCE, got %v", result.Flags)
	}
	if result.HasFlag(FlagTitleBodyMismatch) {
		t.Fatalf("did not expect title/body mismatch, got %v", result.Flags)
	}
}

func TestScoreTitleBodyMismatchPenalty(t *testing.T) {
	t.Parallel()

	members := []Member{
		{ArticleID: 1, Source: "a", Title: "축구 대표팀 월드컵 예선 승리", Body: "반도체 수출이 늘었다.", Summary: "반도체 수출이 늘었다."},
		{ArticleID: 2, Source: "b", Title: "반도체 수출 증가", Body: "반도체 수출이 늘었다.", Summary: "반도체 수출이 늘었다."},
	}

	result := NewScorer(DefaultConfig()).Score(members)
	if !result.HasFlag(FlagTitleBodyMismatch) {
		t.Fatalf("expected mismatch flag, got %v", result.Flags)
	}
	if result.Score != 85 || result.Badge != BadgeGood {
		t.Fatalf("expected 100-15=85 good, got %d %q", result.Score, result.Badge)
	}
}

func TestScoreRoundsEvidencePenalty(t *testing.T) {
	t.Parallel()

	// 2 of 3 sentences supported: 100 - round(60/3) - 10 = 70.
	members := []Member{{
		ArticleID: 4,
		Title:     "전기차 판매 증가",
		Body:      "전기차 판매가 증가했다. 충전소도 늘었다.",
		Summary:   "전기차 판매가 증가했다. 충전소도 늘었다. 유가가 폭락했다.",
	}}

	result := NewScorer(DefaultConfig()).Score(members)
	if result.Entailed != 2 || result.Total != 3 {
		t.Fatalf("expected 2/3 entailed, got %d/%d", result.Entailed, result.Total)
	}
	if result.Score != 70 || result.Badge != BadgeWarn {
		t.Fatalf("expected 70 warn, got %d %q", result.Score, result.Badge)
	}
	if strings.Join(result.Flags, ",") != FlagLowCrossSource {
		t.Fatalf("expected only LOW_CROSS_SOURCE (ratio 0.67 >= 0.60), got %v", result.Flags)
	}
}

func TestScoreCrossSourceCountLowerBound(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(DefaultConfig())
	cluster := Cluster{
		Members:          []Member{{ArticleID: 1, Title: "t", Body: "b.", Summary: "b."}},
		CrossSourceCount: 3,
	}
	if result := scorer.ScoreCluster(cluster); result.HasFlag(FlagLowCrossSource) {
		t.Fatalf("expected cross source count to satisfy diversity, got %v", result.Flags)
	}
}

func TestScoreSourceNamesNormalized(t *testing.T) {
	t.Parallel()

	members := []Member{
		{ArticleID: 1, Source: " KBS ", Summary: "x."},
		{ArticleID: 2, Source: "kbs", Summary: "x."},
		{ArticleID: 3, Source: "   ", Summary: "x."},
	}
	if result := NewScorer(DefaultConfig()).Score(members); result.Sources != 1 || !result.HasFlag(FlagLowCrossSource) {
		t.Fatalf("expected one distinct source, got %d %v", result.Sources, result.Flags)
	}
}

func TestBadgeThresholdsAndRanks(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cases := map[int]Badge{100: BadgeGood, 80: BadgeGood, 79: BadgeWarn, 50: BadgeWarn, 49: BadgeBad, 0: BadgeBad}
	for score, want := range cases {
		if got := cfg.BadgeFor(score); got != want {
			t.Fatalf("score %d: want %q got %q", score, want, got)
		}
	}

	if Worst(BadgeGood, BadgeNone, BadgeWarn) != BadgeWarn {
		t.Fatalf("expected warn to be worst")
	}
	if Worst() != BadgeNone {
		t.Fatalf("expected no badge for empty input")
	}
	for _, badge := range []Badge{BadgeGood, BadgeWarn, BadgeBad} {
		if ParseBadge(badge.Marker()) != badge || ParseBadge(string(badge)) != badge {
			t.Fatalf("badge %q did not survive marker mapping", badge)
		}
	}
	if ParseBadge("\u26a0") != BadgeWarn {
		t.Fatalf("expected bare warning sign to parse as warn")
	}
}

func TestScoreNamedSourcesOverrideCrossSourceCount(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(DefaultConfig())
	syndicated := Cluster{
		Members: []Member{
			{ArticleID: 1, Source: "연합뉴스", Summary: "x."},
			{ArticleID: 2, Source: "KBS", Summary: "x."},
		},
		CrossSourceCount: 1,
	}
	if result := scorer.ScoreCluster(syndicated); result.Sources != 2 || result.HasFlag(FlagLowCrossSource) {
		t.Fatalf("expected two publishers behind one provider to count twice, got %d %v", result.Sources, result.Flags)
	}

	samePublisher := Cluster{
		Members: []Member{
			{ArticleID: 1, Source: "KBS", Summary: "x."},
			{ArticleID: 2, Source: "kbs", Summary: "x."},
		},
		CrossSourceCount: 2,
	}
	if result := scorer.ScoreCluster(samePublisher); result.Sources != 1 || !result.HasFlag(FlagLowCrossSource) {
		t.Fatalf("expected one publisher across two providers to be flagged, got %d %v", result.Sources, result.Flags)
	}
}

func TestCrossVerifyCountsIndependentDomains(t *testing.T) {
	t.Parallel()

	title := "한국은행 기준금리 동결 결정 발표"
	witnesses := []Witness{
		{Host: "www.chosun.com", Title: title + " - 조선일보"},
		{Host: "www.chosun.com", Title: title},
		{Host: "www.donga.com", Title: "한국은행 소식", Snippet: "한국은행 기준금리 동결 결정"},
		{Host: "news.google.com", Title: title},
		{Host: "n.news.naver.com", Title: title},
		{Host: "www.hani.co.kr", Title: "삼성전자 신제품 공개"},
		{Host: "", Title: title},
	}

	got := NewScorer(DefaultConfig()).CrossVerify(title, witnesses)
	want := CrossVerification{Matched: 3, Domains: 2, Boost: 35}
	if got != want {
		t.Fatalf("CrossVerify() = %+v, want %+v", got, want)
	}

	if got := NewScorer(DefaultConfig()).CrossVerify("", witnesses); got != (CrossVerification{}) {
		t.Fatalf("CrossVerify(empty title) = %+v, want zero", got)
	}
}

func TestCrossVerifyBoostTiers(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for domains, want := range map[int]int{0: 0, 1: 20, 2: 35, 3: 50, 7: 50} {
		if got := cfg.CrossVerifyBoost(domains); got != want {
			t.Fatalf("CrossVerifyBoost(%d) = %d, want %d", domains, got, want)
		}
	}
}
