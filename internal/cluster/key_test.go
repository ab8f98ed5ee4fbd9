package cluster

import (
	"strings"
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{`[속보] 한국은행, 기준금리 "동결" 결정 (종합)`, "한국은행 기준금리 동결 결정"},
		{"Fed Holds Rates Steady — Again!", "fed holds rates steady again"},
		{"짧은 제목", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Fatalf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeTitleTruncates(t *testing.T) {
	t.Parallel()

	got := NormalizeTitle(strings.Repeat("가", 150))
	if n := len([]rune(got)); n != DefaultMaxTitleLength {
		t.Fatalf("expected %d runes, got %d", DefaultMaxTitleLength, n)
	}
}

func TestNormalizeTitleTruncationKeepsTrailingSpace(t *testing.T) {
	t.Parallel()

	title := strings.Repeat("가", 119) + " " + strings.Repeat("나", 10)
	got := NormalizeTitle(title)
	if n := len([]rune(got)); n != DefaultMaxTitleLength {
		t.Fatalf("expected %d runes, got %d", DefaultMaxTitleLength, n)
	}
	if !strings.HasSuffix(got, " ") {
		t.Fatalf("expected the cut to keep the space at rune 120, got %q", got[len(got)-8:])
	}
}

func TestHashKeyIsHexSHA256(t *testing.T) {
	t.Parallel()

	key := HashKey("abc")
	if key != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected digest %s", key)
	}
}

func TestAssignThresholdBoundary(t *testing.T) {
	t.Parallel()

	cfg := DefaultKeyConfig()
	anchor := Subject{ID: 1, Provider: "yna", URL: "u1", Title: "삼성전자 3분기 영업이익 발표 예정"}

	self := cfg.Assign(anchor, nil)

	near := cfg.Assign(
		Subject{ID: 2, Provider: "kbs", URL: "u2", Title: "삼성전자, 3분기 실적 공개"},
		&Candidate{Subject: anchor, Similarity: 0.61},
	)
	far := cfg.Assign(
		Subject{ID: 3, Provider: "sbs", URL: "u3", Title: "삼성전자 반도체 투자 확대 계획"},
		&Candidate{Subject: anchor, Similarity: 0.59},
	)

	if near.Key != self.Key || !near.Joined {
		t.Fatalf("expected 0.61 to join the anchor cluster")
	}
	if near.Title != anchor.Title {
		t.Fatalf("expected candidate title, got %q", near.Title)
	}
	if far.Key == self.Key || far.Joined {
		t.Fatalf("expected 0.59 to get its own key")
	}

	exact := cfg.Assign(Subject{ID: 4, Title: "다른 기사 제목이지만 충분히 길다"}, &Candidate{Subject: anchor, Similarity: 0.60})
	if exact.Key != self.Key {
		t.Fatalf("expected similarity equal to threshold to join")
	}
}

func TestAssignFallsBackToProviderURL(t *testing.T) {
	t.Parallel()

	got := DefaultKeyConfig().Assign(Subject{ID: 9, Provider: "naver", URL: "https://n.news/1", Title: "[포토]"}, nil)
	if got.Basis != "naver|https://n.news/1" {
		t.Fatalf("unexpected basis %q", got.Basis)
	}
	if got.Key != HashKey("naver|https://n.news/1") || len(got.Key) != 64 {
		t.Fatalf("unexpected key %q", got.Key)
	}
	if got.Title != "[포토]" {
		t.Fatalf("expected raw title kept for display, got %q", got.Title)
	}
}

func TestKeywordBasis(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title, want string
	}{
		{"[속보] 환율 급등 환율 1400원 돌파 급등", "급등,환율"},
		{"기자 단독 2024 속보", ""},
		{"반도체 수출", "반도체,수출"},
		{"the market and the economy", "economy,market"},
	}
	for _, tc := range cases {
		if got := KeywordBasis(tc.title); got != tc.want {
			t.Fatalf("KeywordBasis(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}

	if KeywordKey("economy", "기자 속보") != "" {
		t.Fatalf("expected empty key for stopword-only title")
	}
	if KeywordKey("economy", "반도체 수출") == KeywordKey("it", "반도체 수출") {
		t.Fatalf("expected category to separate keyword keys")
	}
}
