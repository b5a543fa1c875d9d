// Package textproc cleans mail bodies and extracts entities, statistics and
// keywords for downstream analysis.
package textproc

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/k3a/html2text"
)

// MaxLLMTextLen is the hard rune bound on llm_optimized_text. ProcessBody
// never exceeds it, whatever limit callers configure.
const MaxLLMTextLen = 10000

const keywordCap = 50

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(?:script|style)\b[^>]*>.*?</(?:script|style)>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	spaceRe       = regexp.MustCompile(`\s+`)
	// Conservative allow-set: word characters, whitespace and common
	// punctuation. '&' is not allowed, so decoded entities cannot re-encode
	// and CleanPlain stays idempotent.
	specialRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()\[\]"'@]`)

	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlRe   = regexp.MustCompile(`https?://[^\s<>"]+`)

	phoneRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
		regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.]?\d{4}`),
		regexp.MustCompile(`\b\d{3}\s\d{3}\s\d{4}\b`),
	}

	wordRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	sentenceRe = regexp.MustCompile(`[.!?]+`)
)

// stopWords are common English words excluded from keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "must": {}, "can": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {},
	"they": {}, "me": {}, "him": {}, "her": {}, "us": {}, "them": {},
	"my": {}, "your": {}, "his": {}, "its": {}, "our": {}, "their": {},
	"am": {},
}

// CleanHTML strips markup from an HTML body and returns readable text.
// Script and style elements are dropped wholesale. When the converter
// produces nothing, a plain tag strip plus entity decode is used instead.
func CleanHTML(markup string) string {
	if markup == "" {
		return ""
	}
	stripped := scriptStyleRe.ReplaceAllString(markup, "")
	text := html2text.HTML2Text(stripped)
	if strings.TrimSpace(text) == "" {
		text = html.UnescapeString(tagRe.ReplaceAllString(stripped, ""))
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// CleanPlain normalizes a plain-text body: entities decoded, characters
// outside the allow-set removed, whitespace collapsed. Applying it twice
// yields the same string.
func CleanPlain(text string) string {
	if text == "" {
		return ""
	}
	out := html.UnescapeString(text)
	out = specialRe.ReplaceAllString(out, "")
	out = spaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// ExtractEmailAddresses returns the distinct email addresses in text,
// first-seen order.
func ExtractEmailAddresses(text string) []string {
	return dedupe(emailRe.FindAllString(text, -1))
}

// ExtractPhoneNumbers returns the distinct phone numbers in text, covering
// the common North American layouts.
func ExtractPhoneNumbers(text string) []string {
	var all []string
	for _, re := range phoneRes {
		all = append(all, re.FindAllString(text, -1)...)
	}
	return dedupe(all)
}

// ExtractURLs returns the distinct http and https URLs in text, first-seen
// order.
func ExtractURLs(text string) []string {
	return dedupe(urlRe.FindAllString(text, -1))
}

func dedupe(matches []string) []string {
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Stats summarizes the shape of a body text.
type Stats struct {
	Characters int
	Words      int
	Sentences  int
	Paragraphs int
}

// TextStatistics counts runes, whitespace-separated words, sentences split
// on terminal punctuation runs, and blank-line-separated paragraphs.
func TextStatistics(text string) Stats {
	if text == "" {
		return Stats{}
	}
	st := Stats{
		Characters: utf8.RuneCountInString(text),
		Words:      len(strings.Fields(text)),
	}
	for _, s := range sentenceRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			st.Sentences++
		}
	}
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			st.Paragraphs++
		}
	}
	return st
}

// ExtractKeywords returns up to 50 lower-cased keywords of at least minLen
// runes, ranked by frequency with first appearance breaking ties. Words seen
// only once are dropped.
func ExtractKeywords(text string, minLen int) []string {
	if text == "" {
		return nil
	}
	type entry struct {
		word  string
		count int
		first int
	}
	index := make(map[string]*entry)
	var order []*entry
	for i, tok := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(tok) < minLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		e, ok := index[tok]
		if !ok {
			e = &entry{word: tok, first: i}
			index[tok] = e
			order = append(order, e)
		}
		e.count++
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})
	var out []string
	for _, e := range order {
		if e.count < 2 || len(out) == keywordCap {
			break
		}
		out = append(out, e.word)
	}
	return out
}

// BodyAnalysis is the full normalization result for one message body.
type BodyAnalysis struct {
	CleanedHTML    string
	CleanedText    string
	EmailAddresses []string
	PhoneNumbers   []string
	URLs           []string
	Stats          Stats
	Keywords       []string
	LLMText        string
}

// ProcessBody cleans both body variants and analyzes the plain text, falling
// back to the cleaned HTML when no plain-text body exists. maxLen bounds the
// LLM text in runes; values outside (0, MaxLLMTextLen] clamp to the hard
// bound.
func ProcessBody(htmlBody, textBody string, maxLen int) BodyAnalysis {
	if maxLen <= 0 || maxLen > MaxLLMTextLen {
		maxLen = MaxLLMTextLen
	}
	var ba BodyAnalysis
	if htmlBody != "" {
		ba.CleanedHTML = CleanHTML(htmlBody)
	}
	if textBody != "" {
		ba.CleanedText = CleanPlain(textBody)
	}
	analysis := ba.CleanedText
	if analysis == "" {
		analysis = ba.CleanedHTML
	}
	ba.EmailAddresses = ExtractEmailAddresses(analysis)
	ba.PhoneNumbers = ExtractPhoneNumbers(analysis)
	ba.URLs = ExtractURLs(analysis)
	ba.Stats = TextStatistics(analysis)
	ba.Keywords = ExtractKeywords(analysis, 3)
	ba.LLMText = truncateRunes(analysis, maxLen)
	return ba
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
