package services

import "testing"

func TestEditBudget(t *testing.T) {
	cases := []struct {
		term string
		want int
	}{
		{"ox", 0},
		{"fog", 1},
		{"beach", 1},
		{"sunset", 2},
		{"mountains", 2},
	}
	for _, c := range cases {
		if got := editBudget(c.term); got != c.want {
			t.Fatalf("editBudget(%q): expected %d, got %d", c.term, c.want, got)
		}
	}
}

func TestBuildTextQuery(t *testing.T) {
	q := BuildTextQuery("  Sunset  at the BEACH ")
	if q == nil {
		t.Fatal("expected a query")
	}
	if q.Text != "sunset at the beach" {
		t.Fatalf("expected normalized text, got %q", q.Text)
	}
	if len(q.Fields) != 2 {
		t.Fatalf("expected 2 field clauses, got %d", len(q.Fields))
	}

	tags, title := q.Fields[0], q.Fields[1]
	if tags.Path != "tags" || tags.Boost != 3.0 {
		t.Fatalf("expected tags boosted 3.0, got %s %f", tags.Path, tags.Boost)
	}
	if title.Path != "title" || title.Boost != 2.0 {
		t.Fatalf("expected title boosted 2.0, got %s %f", title.Path, title.Boost)
	}
	if tags.Slop != 2 {
		t.Fatalf("expected phrase slop 2, got %d", tags.Slop)
	}

	if len(tags.Terms) != 4 {
		t.Fatalf("expected 4 terms, got %d", len(tags.Terms))
	}
	// "sunset" > 5 chars, "at" < 3, "the"/"beach" in 3-5
	budgets := map[string]int{"sunset": 2, "at": 0, "the": 1, "beach": 1}
	for _, term := range tags.Terms {
		if budgets[term.Text] != term.MaxEdits {
			t.Fatalf("term %q: expected %d edits, got %d", term.Text, budgets[term.Text], term.MaxEdits)
		}
	}
}

func TestBuildTextQueryEmpty(t *testing.T) {
	if BuildTextQuery("   ") != nil {
		t.Fatal("whitespace-only text should build no query")
	}
	if BuildTextQuery("") != nil {
		t.Fatal("empty text should build no query")
	}
}
