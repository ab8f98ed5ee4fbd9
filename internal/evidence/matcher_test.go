package evidence

import (
	"math"
	"strings"
	"testing"
	"unicode"
)

func TestSplitSentencesReconstructsTrimmedText(t *testing.T) {
	t.Parallel()

	texts := []string{
		"정부가 발표했다. 시장은 반응했다!  다음 주에 다시 논의할까요? 네 그렇습니다.",
		"  Rates rose today.\nMarkets fell sharply!\t\tWhat next?  ",
		"回答。 次の文。",
		"No terminal punctuation at all",
		"Version 2.5 shipped. Ends with a dot.",
		"...   ?!   ",
	}

	for _, text := range texts {
		sentences := SplitSentences(text)
		rest := strings.TrimSpace(text)
		for _, sentence := range sentences {
			if strings.TrimSpace(sentence) == "" {
				t.Fatalf("blank segment in %q", text)
			}
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
			if !strings.HasPrefix(rest, sentence) {
				t.Fatalf("segment %q does not continue %q (text %q)", sentence, rest, text)
			}
			rest = rest[len(sentence):]
		}
		if strings.TrimSpace(rest) != "" {
			t.Fatalf("content lost from %q: remainder %q", text, rest)
		}
	}
}

func TestSplitSentencesBoundaries(t *testing.T) {
	t.Parallel()

	got := SplitSentences("정부가 발표했다. 시장은 반응했어요? 3.5% 올랐다")
	want := []string{"정부가 발표했다.", "시장은 반응했어요?", "3.5% 올랐다"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected split\nwant: %q\ngot:  %q", want, got)
	}

	if got := SplitSentences("   \n\t "); len(got) != 0 {
		t.Fatalf("expected blank input to yield nothing, got %q", got)
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	got := Tokens("Apple 애플, apple! a 1 42 신제품 Apple")
	want := []string{"apple", "애플", "42", "신제품"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected tokens: want %v got %v", want, got)
	}
}

func TestBestEvidenceBelowThresholdIsUnknown(t *testing.T) {
	t.Parallel()

	match := BestEvidence("주가가 크게 올랐다.", "코스피 지수가 크게 상승했다.")
	if match.Verdict != VerdictUnknown {
		t.Fatalf("expected UNKNOWN, got %s (score %f)", match.Verdict, match.Score)
	}
	if math.Abs(match.Score-1.0/3.0) > 1e-9 {
		t.Fatalf("expected overlap 1/3, got %f", match.Score)
	}
	if match.Evidence != "코스피 지수가 크게 상승했다." {
		t.Fatalf("expected best sentence to be recorded, got %q", match.Evidence)
	}
}

func TestBestEvidenceEntailed(t *testing.T) {
	t.Parallel()

	content := "환율은 안정적이었다. 오늘 주가가 크게 하락했다. 거래량은 줄었다."
	match := BestEvidence("주가가 크게 올랐다.", content)
	if match.Verdict != VerdictEntailed {
		t.Fatalf("expected ENTAILED, got %s (score %f)", match.Verdict, match.Score)
	}
	if match.Evidence != "오늘 주가가 크게 하락했다." {
		t.Fatalf("unexpected evidence sentence %q", match.Evidence)
	}
}

func TestBestEvidenceEmptyInputs(t *testing.T) {
	t.Parallel()

	for _, tc := range [][2]string{{"", "some content here."}, {"!!", "content."}, {"real words", "   "}} {
		match := BestEvidence(tc[0], tc[1])
		if match.Verdict != VerdictUnknown || match.Score != 0 || match.HasEvidence() {
			t.Fatalf("expected zero UNKNOWN for %q vs %q, got %+v", tc[0], tc[1], match)
		}
	}
}

func TestBestEvidenceKeepsFirstOnTies(t *testing.T) {
	t.Parallel()

	match := BestEvidence("alpha beta", "alpha one. beta two.")
	if match.Evidence != "alpha one." || match.Score != 0.5 {
		t.Fatalf("expected first tied sentence, got %+v", match)
	}
}

func TestMatcherThresholdAndRows(t *testing.T) {
	t.Parallel()

	strict := Matcher{Threshold: 0.9}
	rows := strict.Match([]string{"alpha beta gamma.", "delta."}, "alpha beta zeta. delta epsilon.")
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(rows))
	}
	if rows[0].SentIdx != 0 || rows[0].Verdict != VerdictUnknown {
		t.Fatalf("expected 2/3 overlap to miss a 0.9 threshold, got %+v", rows[0])
	}
	if rows[1].SentIdx != 1 || rows[1].Verdict != VerdictEntailed || rows[1].Evidence != "delta epsilon." {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
}

func TestTitleSimilarity(t *testing.T) {
	t.Parallel()

	if got := TitleSimilarity("삼성 신제품 공개", "삼성전자 신제품 공개 행사"); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Fatalf("expected 2/3, got %f", got)
	}
	if got := TitleSimilarity("", "anything"); got != 0 {
		t.Fatalf("expected empty title similarity 0, got %f", got)
	}
}
