package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	_ "embed"
)

// defaultCategory is the universal fallback; the bank guarantees it
// always resolves to a non-empty word list.
const defaultCategory = "Random"

//go:embed categories.json
var embeddedCategories []byte

// WordBank is an immutable mapping of category name to candidate words,
// loaded once at startup and never mutated afterwards.
type WordBank struct {
	categories map[string][]string
}

// newWordBank parses a categories JSON document. Categories with empty
// word lists are rejected, and a missing fallback category is synthesized
// as the union of all others.
func newWordBank(data []byte) (*WordBank, error) {
	categories := make(map[string][]string)
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("parsing categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, errors.New("no categories defined")
	}

	for name, words := range categories {
		if len(words) == 0 {
			return nil, fmt.Errorf("category %q has no words", name)
		}
	}

	if _, ok := categories[defaultCategory]; !ok {
		names := make([]string, 0, len(categories))
		for name := range categories {
			names = append(names, name)
		}
		sort.Strings(names)

		fallback := make([]string, 0)
		for _, name := range names {
			fallback = append(fallback, categories[name]...)
		}
		categories[defaultCategory] = fallback
	}

	return &WordBank{categories: categories}, nil
}

// loadWordBank builds the bank from path if given, otherwise from the
// embedded category set.
func loadWordBank(path string) (*WordBank, error) {
	if path == "" {
		return newWordBank(embeddedCategories)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newWordBank(data)
}

// Pick returns a uniformly random word from the named category, falling
// back to the default category if the name is unknown.
func (wb *WordBank) Pick(category string) string {
	words, ok := wb.categories[category]
	if !ok {
		words = wb.categories[defaultCategory]
	}
	return words[randomIndex(len(words))]
}

// Categories returns the sorted category names, for display.
func (wb *WordBank) Categories() []string {
	names := make([]string, 0, len(wb.categories))
	for name := range wb.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
