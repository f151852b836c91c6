// Package search maintains the inverted token index over stored tickets.
//
// The index is a cache: the relational store is authoritative and the index
// can always be rebuilt from it.
package search

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// snapshotVersion is bumped whenever the cache layout changes. A cache with a
// different version is treated as corrupt.
const snapshotVersion = 2

// Tokenize lowercases s and splits it into runs of letters and digits in any
// script, deduplicated in first-seen order.
func Tokenize(s string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(s), -1)
	out := raw[:0]
	seen := make(map[string]struct{}, len(raw))
	for _, tok := range raw {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Document is the indexed view of one stored ticket.
type Document struct {
	ID          string
	Title       string
	Description string
	Labels      []string
	Questions   []string
	CreatedAt   time.Time
	// StoredAt identifies the stored version the tokens were built from.
	StoredAt time.Time
}

func (d Document) tokens() []string {
	var b strings.Builder
	b.WriteString(d.Title)
	b.WriteByte(' ')
	b.WriteString(d.Description)
	for _, l := range d.Labels {
		b.WriteByte(' ')
		b.WriteString(l)
	}
	for _, q := range d.Questions {
		b.WriteByte(' ')
		b.WriteString(q)
	}
	return Tokenize(b.String())
}

type entry struct {
	createdAt time.Time
	storedAt  time.Time
	tokens    []string
}

func newEntry(d Document) entry {
	return entry{createdAt: d.CreatedAt.UTC(), storedAt: d.StoredAt.UTC(), tokens: d.tokens()}
}

// Index maps tokens to ticket ids. It is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{}
	docs     map[string]entry
}

func New() *Index {
	return &Index{
		postings: make(map[string]map[string]struct{}),
		docs:     make(map[string]entry),
	}
}

// Len returns the number of indexed tickets.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Add indexes d, replacing any previous version with the same id.
func (idx *Index) Add(d Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(d.ID)
	idx.addLocked(d.ID, newEntry(d))
}

// Stamps returns the StoredAt of every indexed ticket, keyed by id.
func (idx *Index) Stamps() map[string]time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]time.Time, len(idx.docs))
	for id, e := range idx.docs {
		out[id] = e.storedAt
	}
	return out
}

// Remove drops id from the index. Unknown ids are ignored.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

// Reset replaces the whole index with docs.
func (idx *Index) Reset(docs []Document) {
	postings := make(map[string]map[string]struct{})
	entries := make(map[string]entry, len(docs))
	fresh := &Index{postings: postings, docs: entries}
	for _, d := range docs {
		fresh.removeLocked(d.ID)
		fresh.addLocked(d.ID, newEntry(d))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = postings
	idx.docs = entries
}

func (idx *Index) addLocked(id string, e entry) {
	idx.docs[id] = e
	for _, tok := range e.tokens {
		set, ok := idx.postings[tok]
		if !ok {
			set = make(map[string]struct{})
			idx.postings[tok] = set
		}
		set[id] = struct{}{}
	}
}

func (idx *Index) removeLocked(id string) {
	old, ok := idx.docs[id]
	if !ok {
		return
	}
	for _, tok := range old.tokens {
		set := idx.postings[tok]
		delete(set, id)
		if len(set) == 0 {
			delete(idx.postings, tok)
		}
	}
	delete(idx.docs, id)
}

// Search returns the ids of tickets containing every token of query, newest
// first with ties broken by id. A query without tokens matches nothing.
// limit <= 0 returns all matches.
func (idx *Index) Search(query string, limit int) []string {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	// Intersect starting from the rarest token.
	sets := make([]map[string]struct{}, 0, len(tokens))
	for _, tok := range tokens {
		set, ok := idx.postings[tok]
		if !ok {
			return nil
		}
		sets = append(sets, set)
	}
	slices.SortFunc(sets, func(a, b map[string]struct{}) int { return len(a) - len(b) })

	var ids []string
outer:
	for id := range sets[0] {
		for _, set := range sets[1:] {
			if _, ok := set[id]; !ok {
				continue outer
			}
		}
		ids = append(ids, id)
	}

	slices.SortFunc(ids, func(a, b string) int {
		ta, tb := idx.docs[a].createdAt, idx.docs[b].createdAt
		if c := tb.Compare(ta); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// snapshot is the on-disk cache layout.
type snapshot struct {
	Version int             `cbor:"1,keyasint"`
	Docs    []snapshotEntry `cbor:"2,keyasint"`
}

type snapshotEntry struct {
	ID        string    `cbor:"1,keyasint"`
	CreatedAt time.Time `cbor:"2,keyasint"`
	Tokens    []string  `cbor:"3,keyasint"`
	StoredAt  time.Time `cbor:"4,keyasint"`
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic("search: CBOR encoder initialization failed: " + err.Error())
	}
	return em
}()

// Save writes the index to path atomically.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	snap := snapshot{Version: snapshotVersion, Docs: make([]snapshotEntry, 0, len(idx.docs))}
	for id, e := range idx.docs {
		snap.Docs = append(snap.Docs, snapshotEntry{ID: id, CreatedAt: e.createdAt, StoredAt: e.storedAt, Tokens: e.tokens})
	}
	idx.mu.RUnlock()
	slices.SortFunc(snap.Docs, func(a, b snapshotEntry) int { return strings.Compare(a.ID, b.ID) })

	data, err := encMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding search index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".search_index-*")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing search index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing search index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing search index: %w", err)
	}
	return nil
}

// Load reads an index cache written by Save. Missing, unreadable, and
// corrupt files all return an error; callers rebuild in that case.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding search index: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("search index version %d, want %d", snap.Version, snapshotVersion)
	}
	idx := New()
	for _, e := range snap.Docs {
		if e.ID == "" {
			return nil, fmt.Errorf("search index entry without id")
		}
		idx.removeLocked(e.ID)
		idx.addLocked(e.ID, entry{createdAt: e.CreatedAt.UTC(), storedAt: e.StoredAt.UTC(), tokens: e.Tokens})
	}
	return idx, nil
}
