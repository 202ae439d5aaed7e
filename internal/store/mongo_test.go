package store

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestKnnScoreToUnit(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0.5, 0.5},
		{0, 0},
		{1, 1},
		{-0.1, 0},
		{1.2, 1},
	}
	for _, c := range cases {
		if got := knnScoreToUnit(c.in); got != c.want {
			t.Fatalf("knnScoreToUnit(%f): expected %f, got %f", c.in, c.want, got)
		}
	}
}

func TestCompoundFromQuery(t *testing.T) {
	q := &TextQuery{
		Text: "sunset beach",
		Fields: []FieldClause{
			{
				Path:  "tags",
				Boost: 3.0,
				Terms: []Term{{Text: "sunset", MaxEdits: 2}, {Text: "beach", MaxEdits: 1}},
				Slop:  2,
			},
			{
				Path:  "title",
				Boost: 2.0,
				Terms: []Term{{Text: "sunset", MaxEdits: 2}, {Text: "beach", MaxEdits: 1}},
				Slop:  2,
			},
		},
	}

	compound := compoundFromQuery(q)
	should, ok := compound["should"].([]bson.M)
	if !ok {
		t.Fatal("expected should clauses")
	}
	// Per field: 1 match + 2 fuzzy + 1 phrase = 4, times 2 fields
	if len(should) != 8 {
		t.Fatalf("expected 8 clauses, got %d", len(should))
	}
	if compound["minimumShouldMatch"] != 1 {
		t.Fatalf("expected minimumShouldMatch 1, got %v", compound["minimumShouldMatch"])
	}

	// First clause is the analyzed match on tags with its boost
	text := should[0]["text"].(bson.M)
	if text["path"] != "tags" || text["query"] != "sunset beach" {
		t.Fatalf("unexpected first clause: %v", text)
	}
	boost := text["score"].(bson.M)["boost"].(bson.M)["value"]
	if boost != 3.0 {
		t.Fatalf("expected tags boost 3.0, got %v", boost)
	}

	// Fuzzy clauses carry per-term edit budgets
	fuzzy := should[1]["text"].(bson.M)
	if fuzzy["query"] != "sunset" {
		t.Fatalf("unexpected fuzzy term: %v", fuzzy["query"])
	}
	if fuzzy["fuzzy"].(bson.M)["maxEdits"] != 2 {
		t.Fatalf("expected maxEdits 2, got %v", fuzzy["fuzzy"])
	}

	// Last clause per field is the phrase with slop
	phrase := should[3]["phrase"].(bson.M)
	if phrase["slop"] != 2 {
		t.Fatalf("expected slop 2, got %v", phrase["slop"])
	}
}

func TestCompoundSkipsExactTerms(t *testing.T) {
	q := &TextQuery{
		Text: "ox",
		Fields: []FieldClause{
			{Path: "tags", Boost: 3.0, Terms: []Term{{Text: "ox", MaxEdits: 0}}, Slop: 2},
		},
	}
	should := compoundFromQuery(q)["should"].([]bson.M)
	// Only the analyzed match: no fuzzy clause for a 0-edit term, no phrase
	// for a single-term query.
	if len(should) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(should))
	}
}

func TestMissingDescriptorsFilter(t *testing.T) {
	doc := missingDescriptorsFilter([]string{"color_histogram", "edge_histogram"})
	or, ok := doc["$or"].([]bson.M)
	if !ok || len(or) != 2 {
		t.Fatalf("expected one $exists:false branch per field, got %v", doc)
	}
	if or[0]["color_histogram"].(bson.M)["$exists"] != false {
		t.Fatalf("unexpected first branch: %v", or[0])
	}
	if or[1]["edge_histogram"].(bson.M)["$exists"] != false {
		t.Fatalf("unexpected second branch: %v", or[1])
	}
}

func TestMatchFilterDoc(t *testing.T) {
	if matchFilterDoc(nil) != nil {
		t.Fatal("nil filter should render nil")
	}
	if matchFilterDoc(&Filter{}) != nil {
		t.Fatal("empty filter should render nil")
	}

	from := time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := matchFilterDoc(&Filter{Tags: []string{"beach"}, MinViews: 100, DateFrom: &from})
	if doc["tag_list"] == nil || doc["views"] == nil || doc["date_uploaded"] == nil {
		t.Fatalf("missing filter clauses: %v", doc)
	}
	if doc["views"].(bson.M)["$gte"] != int64(100) {
		t.Fatalf("unexpected views clause: %v", doc["views"])
	}
}
