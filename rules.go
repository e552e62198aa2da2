package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// RulesAnalyzer classifies without any external service. It is the
// deterministic fallback strategy: phrase detection against the indicator
// vocabulary plus lexical matching against the scope baseline.
type RulesAnalyzer struct {
	Vocab IndicatorVocabulary
}

// Match-band thresholds for the lexical score. These are internal to the
// rules strategy; the confidence thresholds callers configure live in the
// Classifier.
const (
	matchWeak   = 0.15
	matchStrong = 0.30
)

var wordRegex = regexp.MustCompile(`[a-z0-9]+`)
var whitespaceRegex = regexp.MustCompile(`\s+`)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "for": true, "in": true, "on": true, "at": true, "by": true,
	"is": true, "are": true, "was": true, "be": true, "it": true, "its": true,
	"this": true, "that": true, "these": true, "those": true, "as": true,
	"i": true, "we": true, "you": true, "me": true, "us": true, "my": true,
	"our": true, "your": true, "please": true, "also": true, "can": true,
	"could": true, "would": true, "will": true, "do": true, "does": true,
	"just": true, "some": true, "with": true, "if": true, "so": true,
}

func normalizeText(text string) string {
	return whitespaceRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

func tokenize(text string) []string {
	words := wordRegex.FindAllString(normalizeText(text), -1)
	var tokens []string
	seen := map[string]bool{}
	for _, w := range words {
		if stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

func trigrams(word string) map[string]bool {
	grams := map[string]bool{}
	for i := 0; i+3 <= len(word); i++ {
		grams[word[i:i+3]] = true
	}
	return grams
}

// tokensMatch accepts exact equality, or for longer words a character
// trigram overlap, so lexical variants of the same deliverable
// ("login"/"logout", "invoice"/"invoicing") still register.
func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	ta, tb := trigrams(a), trigrams(b)
	shared := 0
	for g := range ta {
		if tb[g] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	if union == 0 {
		return false
	}
	return float64(shared)/float64(union) >= 0.15
}

// similarity scores how much of the request text is covered by the scope
// text: matched request tokens over total request tokens.
func similarity(requestText, scopeText string) float64 {
	reqTokens := tokenize(requestText)
	scopeTokens := tokenize(scopeText)
	if len(reqTokens) == 0 || len(scopeTokens) == 0 {
		return 0
	}
	matched := 0
	for _, rt := range reqTokens {
		for _, st := range scopeTokens {
			if tokensMatch(rt, st) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(reqTokens))
}

func scopeItemText(item ScopeItem) string {
	return strings.TrimSpace(item.Title + " " + item.Description + " " + item.Category)
}

// bestScopeMatch returns the index and score of the best matching item.
// Ties keep the earliest item: insertion order is match-priority order.
func bestScopeMatch(requestText string, items []ScopeItem) (int, float64) {
	bestIndex, bestScore := -1, 0.0
	for i, item := range items {
		score := similarity(requestText, scopeItemText(item))
		if score > bestScore {
			bestScore = score
			bestIndex = i
		}
	}
	return bestIndex, bestScore
}

// Analyze implements Analyzer. Pure and deterministic: identical
// (baseline, text) inputs always yield the identical result.
func (a RulesAnalyzer) Analyze(_ context.Context, baseline ScopeBaseline, requestText string) (AnalysisResult, error) {
	clarification := findPhrases(requestText, a.Vocab.Clarification)
	revision := findPhrases(requestText, a.Vocab.Revision)
	creepTags := a.Vocab.creepTags(requestText)

	bestIndex, bestScore := bestScopeMatch(requestText, baseline.Items)

	// Questions are not work requests.
	if len(clarification) > 0 {
		return AnalysisResult{
			Classification: ClassificationClarification,
			Confidence:     0.85,
			Reasoning:      fmt.Sprintf("Client appears to be asking a question, not requesting work. Detected phrases: %s.", strings.Join(clarification, ", ")),
			Indicators:     creepTags,
		}, nil
	}

	// Changes to work already in the baseline, and rework of items
	// already delivered, are revisions: billable rework, not new scope.
	if bestIndex >= 0 && bestScore >= matchWeak {
		item := baseline.Items[bestIndex]
		if len(revision) > 0 {
			return AnalysisResult{
				Classification:   ClassificationRevision,
				Confidence:       min(0.80, 0.5+bestScore),
				Reasoning:        fmt.Sprintf("Client requesting changes to an existing scope item. Revision phrases: %s. Matched item: %q.", strings.Join(revision, ", "), item.Title),
				MatchedItemIndex: intPtr(bestIndex),
				Indicators:       creepTags,
			}, nil
		}
		if item.IsCompleted && bestScore < matchStrong {
			return AnalysisResult{
				Classification:   ClassificationRevision,
				Confidence:       min(0.80, 0.5+bestScore),
				Reasoning:        fmt.Sprintf("Request overlaps already-completed item %q; treating as rework rather than new scope.", item.Title),
				MatchedItemIndex: intPtr(bestIndex),
				Indicators:       creepTags,
			}, nil
		}
	}

	// A strong lexical match to a scope item wins even when the message
	// carries scope-creep language around it.
	if bestIndex >= 0 && bestScore >= matchStrong {
		return AnalysisResult{
			Classification:   ClassificationInScope,
			Confidence:       min(0.95, 0.7+bestScore/2),
			Reasoning:        fmt.Sprintf("Request matches scope item %q with %.0f%% token coverage.", baseline.Items[bestIndex].Title, bestScore*100),
			MatchedItemIndex: intPtr(bestIndex),
		}, nil
	}

	if len(creepTags) > 0 {
		return AnalysisResult{
			Classification: ClassificationOutOfScope,
			Confidence:     min(0.95, 0.7+0.05*float64(len(creepTags))),
			Reasoning:      fmt.Sprintf("Request carries scope-creep indicators (%s) and no strong match to any scope item.", strings.Join(creepTags, ", ")),
			Indicators:     creepTags,
		}, nil
	}

	// A weak match is reported as in-scope with matching confidence; the
	// Classifier's threshold policy turns the ambiguous band into a
	// clarification.
	if bestIndex >= 0 && bestScore >= matchWeak {
		return AnalysisResult{
			Classification:   ClassificationInScope,
			Confidence:       0.4 + bestScore,
			Reasoning:        fmt.Sprintf("Partial match to scope item %q; the request may need clarifying with the client.", baseline.Items[bestIndex].Title),
			MatchedItemIndex: intPtr(bestIndex),
		}, nil
	}

	// Related to the project overall but to no specific item.
	if similarity(requestText, baseline.ProjectDescription) >= matchStrong {
		return AnalysisResult{
			Classification: ClassificationClarification,
			Confidence:     0.5,
			Reasoning:      "Request relates to the project description but matches no specific scope item.",
		}, nil
	}

	return AnalysisResult{
		Classification: ClassificationOutOfScope,
		Confidence:     0.6,
		Reasoning:      "No significant match to any scope item; request looks outside the agreed scope.",
		Indicators:     []string{"no-baseline-match"},
	}, nil
}
