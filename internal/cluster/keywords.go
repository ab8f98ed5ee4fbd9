package cluster

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxKeywordRunes = 12

var keywordToken = regexp.MustCompile(`[가-힣A-Za-z0-9]{2,}`)

var keywordStopwords = map[string]struct{}{
	"기자": {}, "단독": {}, "속보": {}, "오늘": {}, "이번": {}, "관련": {},
	"대한": {}, "그리고": {}, "하지만": {}, "있다": {}, "했다": {}, "한다": {},
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "that": {},
	"this": {}, "you": {}, "your": {},
}

// KeywordBasis reduces a title to its two most frequent usable tokens, sorted and
// comma-joined. Frequency ties keep first occurrence. It returns "" when nothing usable
// remains.
func KeywordBasis(title string) string {
	counts := make(map[string]int)
	order := make([]string, 0, 8)
	for _, token := range keywordToken.FindAllString(strings.ToLower(title), -1) {
		if _, stop := keywordStopwords[token]; stop {
			continue
		}
		if allDigits(token) || utf8.RuneCountInString(token) > maxKeywordRunes {
			continue
		}
		if counts[token] == 0 {
			order = append(order, token)
		}
		counts[token]++
	}
	if len(order) == 0 {
		return ""
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	top := order[:min(2, len(order))]
	sort.Strings(top)
	return strings.Join(top, ",")
}

// KeywordKey returns the keyword cluster key for a title within a category, or "" when
// the title has no usable tokens.
func KeywordKey(category, title string) string {
	basis := KeywordBasis(title)
	if basis == "" {
		return ""
	}
	return HashKey(strings.TrimSpace(category) + "|" + basis)
}

func allDigits(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
