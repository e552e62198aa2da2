package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IndicatorVocabulary holds the phrase lists the rules strategy matches
// against. It ships with defaults and can be replaced wholesale from a
// YAML file, since the useful phrases differ per freelancer and client.
type IndicatorVocabulary struct {
	// Creep maps a short indicator tag (e.g. "new-feature") to the
	// phrases that raise it. Tags also feed the drift detector's
	// recurring-category count.
	Creep []CreepIndicator `yaml:"creep"`

	// Clarification phrases mark a request as a question, not work.
	Clarification []string `yaml:"clarification"`

	// Revision phrases mark a request as a change to existing scope.
	Revision []string `yaml:"revision"`
}

type CreepIndicator struct {
	Tag     string   `yaml:"tag"`
	Phrases []string `yaml:"phrases"`
}

func DefaultVocabulary() IndicatorVocabulary {
	return IndicatorVocabulary{
		Creep: []CreepIndicator{
			{Tag: "scope-addition", Phrases: []string{
				"also", "additionally", "one more thing", "can you also",
				"while you're at it", "by the way", "oh and", "almost forgot",
				"one more request", "alongside", "in addition", "as well as",
			}},
			{Tag: "new-feature", Phrases: []string{
				"new feature", "mobile app", "another page", "a new", "from scratch",
				"build a full", "whole new", "separate site", "admin panel",
			}},
			{Tag: "unbounded-hours", Phrases: []string{
				"ongoing", "unlimited", "whenever needed", "as many as",
				"open-ended", "keep updating", "maintain it", "every week",
			}},
			{Tag: "minimization", Phrases: []string{
				"quick addition", "shouldn't take long", "real quick", "easy change",
				"small tweak", "just add", "tiny favor", "simple addition", "minor update",
			}},
			{Tag: "urgency-pressure", Phrases: []string{
				"asap", "right away", "by tomorrow", "urgent", "immediately",
			}},
		},
		Clarification: []string{
			"what do you mean", "can you explain", "not sure about",
			"question about", "clarify", "confused", "how does", "what is the",
		},
		Revision: []string{
			"change", "update", "modify", "revise", "adjust", "tweak",
			"different", "instead", "actually", "on second thought", "redo",
		},
	}
}

// LoadIndicatorVocabulary reads a vocabulary file. Sections left empty in
// the file fall back to the defaults, so a user can override just the
// creep tags without restating the clarification/revision lists.
func LoadIndicatorVocabulary(path string) (IndicatorVocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IndicatorVocabulary{}, fmt.Errorf("read indicators: %w", err)
	}
	var vocab IndicatorVocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return IndicatorVocabulary{}, fmt.Errorf("parse indicators yaml: %w", err)
	}

	defaults := DefaultVocabulary()
	if len(vocab.Creep) == 0 {
		vocab.Creep = defaults.Creep
	}
	if len(vocab.Clarification) == 0 {
		vocab.Clarification = defaults.Clarification
	}
	if len(vocab.Revision) == 0 {
		vocab.Revision = defaults.Revision
	}
	for _, ind := range vocab.Creep {
		if strings.TrimSpace(ind.Tag) == "" {
			return IndicatorVocabulary{}, fmt.Errorf("creep indicator with empty tag")
		}
	}
	return vocab, nil
}

// VocabularyForConfig resolves the active vocabulary: the configured file
// if set, defaults otherwise.
func VocabularyForConfig(cfg Config) IndicatorVocabulary {
	if strings.TrimSpace(cfg.IndicatorsPath) == "" {
		return DefaultVocabulary()
	}
	vocab, err := LoadIndicatorVocabulary(cfg.IndicatorsPath)
	if err != nil {
		// Validated at startup; treat a later read failure as transient.
		return DefaultVocabulary()
	}
	return vocab
}

// findPhrases returns the phrases from the list present in the text.
func findPhrases(text string, phrases []string) []string {
	normalized := normalizeText(text)
	var found []string
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(normalized, normalizeText(phrase)) {
			found = append(found, phrase)
		}
	}
	return found
}

// creepTags returns the deduplicated tags whose phrase lists match the
// text, in vocabulary order.
func (v IndicatorVocabulary) creepTags(text string) []string {
	var tags []string
	for _, ind := range v.Creep {
		if len(findPhrases(text, ind.Phrases)) > 0 {
			tags = append(tags, ind.Tag)
		}
	}
	return tags
}
