package search

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func TestTokenize(t *testing.T) {
	got := Tokenize("Push-Notifications for iOS 17, push!")
	want := []string{"push", "notifications", "for", "ios", "17"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
	if len(Tokenize("  --  ")) != 0 {
		t.Error("expected no tokens for punctuation only")
	}
}

func TestSearch_ANDSemantics(t *testing.T) {
	idx := New()
	idx.Add(Document{ID: "A", Title: "Push notifications", CreatedAt: base})
	idx.Add(Document{ID: "B", Title: "Push reminders", CreatedAt: base})
	idx.Add(Document{ID: "C", Title: "Email notifications", CreatedAt: base})

	if got := idx.Search("push notifications", 0); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("AND search = %v, want [A]", got)
	}
	if got := idx.Search("push", 0); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("single token = %v, want [A B]", got)
	}
	if got := idx.Search("sms", 0); len(got) != 0 {
		t.Errorf("unknown token = %v", got)
	}
	if got := idx.Search("!!", 0); got != nil {
		t.Errorf("empty query = %v", got)
	}
}

func TestSearch_NewestFirstThenID(t *testing.T) {
	idx := New()
	idx.Add(Document{ID: "OLD", Title: "checkout", CreatedAt: base})
	idx.Add(Document{ID: "NEW-B", Title: "checkout", CreatedAt: base.Add(time.Hour)})
	idx.Add(Document{ID: "NEW-A", Title: "checkout", CreatedAt: base.Add(time.Hour)})

	got := idx.Search("checkout", 0)
	want := []string{"NEW-A", "NEW-B", "OLD"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if got := idx.Search("checkout", 2); len(got) != 2 {
		t.Errorf("limit ignored: %v", got)
	}
}

func TestSearch_IndexesLabelsAndQuestions(t *testing.T) {
	idx := New()
	idx.Add(Document{
		ID:        "X",
		Title:     "Profile page",
		Labels:    []string{"frontend"},
		Questions: []string{"Which avatar sizes are supported?"},
		CreatedAt: base,
	})
	for _, q := range []string{"frontend", "avatar", "profile AVATAR"} {
		if got := idx.Search(q, 0); len(got) != 1 {
			t.Errorf("Search(%q) = %v", q, got)
		}
	}
}

func TestAdd_ReplacesPreviousVersion(t *testing.T) {
	idx := New()
	idx.Add(Document{ID: "A", Title: "payment refund", CreatedAt: base})
	idx.Add(Document{ID: "A", Title: "profile avatar", CreatedAt: base})

	if got := idx.Search("refund", 0); len(got) != 0 {
		t.Errorf("stale token still matches: %v", got)
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d, want 1", idx.Len())
	}

	idx.Remove("A")
	if got := idx.Search("avatar", 0); len(got) != 0 {
		t.Errorf("removed doc still matches: %v", got)
	}
	idx.Remove("missing")
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "search_index.cbor")
	idx := New()
	idx.Add(Document{ID: "A", Title: "booking calendar", CreatedAt: base})
	idx.Add(Document{ID: "B", Title: "booking refund", CreatedAt: base.Add(time.Minute)})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := loaded.Search("booking", 0); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Errorf("loaded search = %v", got)
	}
}

func TestLoad_CorruptOrMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.cbor")); err == nil {
		t.Error("expected error for missing cache")
	}
	bad := filepath.Join(dir, "bad.cbor")
	if err := os.WriteFile(bad, []byte("not cbor at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for corrupt cache")
	}
}

func TestReset(t *testing.T) {
	idx := New()
	idx.Add(Document{ID: "gone", Title: "legacy", CreatedAt: base})
	idx.Reset([]Document{{ID: "A", Title: "dashboard widgets", CreatedAt: base}})

	if got := idx.Search("legacy", 0); len(got) != 0 {
		t.Errorf("reset kept old docs: %v", got)
	}
	if got := idx.Search("widgets", 0); len(got) != 1 {
		t.Errorf("reset lost new docs: %v", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	idx := New()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			idx.Add(Document{ID: string(rune('A' + i)), Title: "shared token", CreatedAt: base})
		}()
		go func() {
			defer wg.Done()
			idx.Search("shared", 0)
		}()
	}
	wg.Wait()
	if got := idx.Search("shared token", 0); len(got) != 8 {
		t.Errorf("got %d results, want 8", len(got))
	}
}

func TestTokenize_Unicode(t *testing.T) {
	got := Tokenize("Überweisung PRÜFEN, prüfen 2x")
	want := []string{"überweisung", "prüfen", "2x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
	if got := Tokenize("決済画面の改善"); !reflect.DeepEqual(got, []string{"決済画面の改善"}) {
		t.Errorf("Tokenize(cjk) = %v", got)
	}
}

func TestSearch_UnicodeTitle(t *testing.T) {
	idx := New()
	idx.Add(Document{ID: "DE", Title: "Überweisung prüfen", CreatedAt: base})
	idx.Add(Document{ID: "JA", Title: "決済画面の改善", CreatedAt: base})

	if got := idx.Search("prüfen", 0); !reflect.DeepEqual(got, []string{"DE"}) {
		t.Errorf("Search(prüfen) = %v, want [DE]", got)
	}
	if got := idx.Search("pr", 0); len(got) != 0 {
		t.Errorf("Search(pr) = %v, fragments must not match", got)
	}
	if got := idx.Search("決済画面の改善", 0); !reflect.DeepEqual(got, []string{"JA"}) {
		t.Errorf("Search(cjk) = %v, want [JA]", got)
	}
}

func TestSaveLoad_KeepsStamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search_index.cbor")
	stored := base.Add(2 * time.Hour)
	idx := New()
	idx.Add(Document{ID: "A", Title: "booking", CreatedAt: base, StoredAt: stored})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := loaded.Stamps()["A"]; !got.Equal(stored) {
		t.Errorf("stamp = %v, want %v", got, stored)
	}
}
