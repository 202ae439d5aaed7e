package services

import (
	"strings"
	"unicode/utf8"

	"visual-search-platform/internal/store"
)

const (
	tagsBoost  = 3.0
	titleBoost = 2.0
	phraseSlop = 2
)

// editBudget scales the allowed edit distance with term length: short terms
// get no slack (every edit would change most of the term), mid-length terms
// one edit, long terms two.
func editBudget(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n < 3:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// BuildTextQuery turns free text into the fuzzy field query the store
// executes: per field an analyzed match, one fuzzy clause per term with a
// length-scaled edit budget, and a slop-2 phrase, with tags weighted over
// titles 3:2. Returns nil when the text has no usable terms.
func BuildTextQuery(text string) *store.TextQuery {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return nil
	}

	words := strings.Fields(normalized)
	terms := make([]store.Term, 0, len(words))
	for _, w := range words {
		terms = append(terms, store.Term{Text: w, MaxEdits: editBudget(w)})
	}

	return &store.TextQuery{
		Text: normalized,
		Fields: []store.FieldClause{
			{Path: "tags", Boost: tagsBoost, Terms: terms, Slop: phraseSlop},
			{Path: "title", Boost: titleBoost, Terms: terms, Slop: phraseSlop},
		},
	}
}
