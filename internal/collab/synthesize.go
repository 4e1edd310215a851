package collab

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mtzanidakis/erevna/internal/stage"
	"github.com/mtzanidakis/erevna/internal/store"
)

// LexicalSynthesizer builds a synthesis from the source texts with plain
// lexical heuristics: keyword-weighted sentence extraction, trend-verb
// detection and pairwise overlap for agreement.
type LexicalSynthesizer struct{}

func NewSynthesizer() stage.Synthesizer {
	return &LexicalSynthesizer{}
}

const (
	maxKeyFindings  = 5
	maxSectionItems = 4
	agreementCutoff = 0.5
)

var trendMarkers = []string{
	"increase", "increasing", "growth", "growing", "grew", "rising", "rose",
	"decline", "declining", "fell", "falling", "accelerat", "expand", "trend",
}

var disputeMarkers = []string{
	"however", "contrary", "dispute", "disputes", "disagree", "contradict",
	"caution", "overstate", "minority", "skeptic",
}

var gapMarkers = []string{
	"unresolved", "unknown", "gap", "gaps", "unclear", "premature", "open question",
	"little reliable evidence", "remains to be",
}

func (s *LexicalSynthesizer) Synthesize(ctx context.Context, topic string, results []stage.SearchResult, v *stage.Verification) (*stage.Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	syn := &stage.Synthesis{
		SourceCount:   len(results),
		SynthesisDate: time.Now().UTC().Format("2006-01-02"),
	}

	if len(results) == 0 {
		syn.ExecutiveSummary = fmt.Sprintf("No sources were found for %q; nothing to synthesize.", topic)
		syn.KnowledgeGaps = []string{"no source material was collected for this topic"}
		return syn, nil
	}

	type sentence struct {
		text   string
		source int
	}
	var sentences []sentence
	for i, r := range results {
		for _, text := range splitSentences(r.Content) {
			sentences = append(sentences, sentence{text: text, source: i})
		}
	}

	freq := keywordFrequency(results)

	// Key findings: highest keyword-density sentences, one per source first.
	scored := make([]int, len(sentences))
	order := make([]int, len(sentences))
	for i, sent := range sentences {
		order[i] = i
		for _, tok := range tokenize(sent.text) {
			scored[i] += freq[tok]
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return scored[order[a]] > scored[order[b]] })

	usedSource := map[int]bool{}
	for _, idx := range order {
		if len(syn.KeyFindings) >= maxKeyFindings {
			break
		}
		sent := sentences[idx]
		if usedSource[sent.source] && len(syn.KeyFindings) < len(results) {
			continue
		}
		usedSource[sent.source] = true
		syn.KeyFindings = append(syn.KeyFindings, sent.text)
	}

	for _, sent := range sentences {
		lower := strings.ToLower(sent.text)
		if containsAny(lower, trendMarkers) && len(syn.Trends) < maxSectionItems {
			syn.Trends = append(syn.Trends, sent.text)
		}
		if containsAny(lower, disputeMarkers) && len(syn.Disagreements) < maxSectionItems {
			syn.Disagreements = append(syn.Disagreements, sent.text)
		}
		if containsAny(lower, gapMarkers) && len(syn.KnowledgeGaps) < maxSectionItems {
			syn.KnowledgeGaps = append(syn.KnowledgeGaps, sent.text)
		}
	}

	// Agreements: a sentence echoed by a different source.
	for i := 0; i < len(sentences) && len(syn.Agreements) < maxSectionItems; i++ {
		for j := i + 1; j < len(sentences); j++ {
			if sentences[i].source == sentences[j].source {
				continue
			}
			if store.Similarity(sentences[i].text, sentences[j].text) >= agreementCutoff {
				syn.Agreements = append(syn.Agreements, sentences[i].text)
				break
			}
		}
	}

	if len(results) < 3 {
		syn.KnowledgeGaps = append(syn.KnowledgeGaps, "limited source coverage; conclusions rest on few documents")
	}
	if v != nil && v.CredibilityScore > 0 && v.CredibilityScore < questionableThreshold {
		syn.KnowledgeGaps = append(syn.KnowledgeGaps, "overall source credibility is low")
	}

	syn.ExecutiveSummary = summarize(topic, results, v)
	return syn, nil
}

func summarize(topic string, results []stage.SearchResult, v *stage.Verification) string {
	domains := map[string]bool{}
	for _, r := range results {
		if r.Domain != "" {
			domains[r.Domain] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research on %q drew on %d sources across %d domains.", topic, len(results), len(domains))
	if v != nil {
		fmt.Fprintf(&b, " Average source credibility was %.2f.", v.CredibilityScore)
	}
	if len(results) > 0 {
		fmt.Fprintf(&b, " The highest-confidence source was %q.", results[0].Title)
	}
	return b.String()
}

func splitSentences(text string) []string {
	var out []string
	for _, raw := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if s := strings.TrimSpace(raw); len(s) > 20 {
			out = append(out, s+".")
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "that": true, "with": true, "for": true,
	"are": true, "was": true, "this": true, "from": true, "have": true,
	"has": true, "were": true, "their": true, "which": true, "been": true,
	"over": true, "into": true, "about": true, "while": true, "some": true,
}

func tokenize(text string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) > 3 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func keywordFrequency(results []stage.SearchResult) map[string]int {
	freq := map[string]int{}
	for _, r := range results {
		for _, tok := range tokenize(r.Content) {
			freq[tok]++
		}
	}
	return freq
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
