package postgres

import "testing"

func TestBuildMultiRowInsertSingleRow(t *testing.T) {
	query, args := buildMultiRowInsert([]string{"A"}, []string{`{"id":1}`})

	wantQuery := "INSERT INTO tweets (run, tweet) VALUES ($1,$2::jsonb)"
	if query != wantQuery {
		t.Fatalf("query = %q, want %q", query, wantQuery)
	}
	if len(args) != 2 || args[0] != "A" || args[1] != `{"id":1}` {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildMultiRowInsertMultipleRows(t *testing.T) {
	query, args := buildMultiRowInsert(
		[]string{"A", "A", "B"},
		[]string{`{"id":1}`, `{"id":2}`, `{"id":3}`},
	)

	wantQuery := "INSERT INTO tweets (run, tweet) VALUES ($1,$2::jsonb),($3,$4::jsonb),($5,$6::jsonb)"
	if query != wantQuery {
		t.Fatalf("query = %q, want %q", query, wantQuery)
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 bound args, got %d", len(args))
	}
	if args[4] != "B" || args[5] != `{"id":3}` {
		t.Fatalf("unexpected trailing args: %v", args)
	}
}

func TestInsertTweetsNoopOnEmptyInput(t *testing.T) {
	s := &Store{}
	if err := s.InsertTweets(nil, nil, nil); err != nil {
		t.Fatalf("expected no-op on empty input, got %v", err)
	}
}

func TestInsertTweetsRejectsMismatchedLengths(t *testing.T) {
	s := &Store{}
	err := s.InsertTweets(nil, []string{"A"}, nil)
	if err == nil {
		t.Fatal("expected error for mismatched run_id/line counts")
	}
}
