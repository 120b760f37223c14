// Package search ranks chat messages against a free-text query.
//
// An Index is built once per request from a bounded slice of recent
// messages and is read-only afterwards, so it is safe for concurrent use.
// Text is NFKC-normalized and lower-cased, then split on anything that is
// not a letter or digit. A message scores the Jaccard similarity between
// its token set and the query's: |Q ∩ M| / |Q ∪ M|.
package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Document is one message to index. Documents are passed oldest first.
type Document struct {
	ID   string
	Text string
}

// Result is a matching message and its score in (0, 1].
type Result struct {
	ID    string
	Score float64
}

// Option tunes NewIndex.
type Option func(*options)

type options struct {
	minTokenRunes int
	stopwords     map[string]struct{}
}

// WithMinTokenRunes ignores tokens shorter than n runes in both documents
// and queries.
func WithMinTokenRunes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minTokenRunes = n
		}
	}
}

// WithStopwords ignores the given words. Matching is case-insensitive.
func WithStopwords(words ...string) Option {
	return func(o *options) {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			if o.stopwords == nil {
				o.stopwords = make(map[string]struct{})
			}
			o.stopwords[w] = struct{}{}
		}
	}
}

type entry struct {
	id     string
	tokens int // distinct tokens
}

// Index is an inverted index from token to the documents containing it.
type Index struct {
	opts     options
	entries  []entry
	postings map[string][]int // token -> entry positions, ascending
}

// NewIndex indexes docs. Documents without any usable token are skipped.
func NewIndex(docs []Document, opts ...Option) *Index {
	ix := &Index{postings: make(map[string][]int)}
	for _, o := range opts {
		o(&ix.opts)
	}
	for _, d := range docs {
		toks := ix.tokens(d.Text)
		if len(toks) == 0 {
			continue
		}
		pos := len(ix.entries)
		ix.entries = append(ix.entries, entry{id: d.ID, tokens: len(toks)})
		for t := range toks {
			ix.postings[t] = append(ix.postings[t], pos)
		}
	}
	return ix
}

// Len reports how many documents were indexed.
func (ix *Index) Len() int { return len(ix.entries) }

// TopK returns at most k documents sharing a token with query, best first.
// Equal scores put the newer document first. k <= 0 means 3.
func (ix *Index) TopK(query string, k int) []Result {
	if k <= 0 {
		k = 3
	}
	q := ix.tokens(query)
	if len(q) == 0 || len(ix.entries) == 0 {
		return nil
	}

	shared := make(map[int]int)
	for t := range q {
		for _, pos := range ix.postings[t] {
			shared[pos]++
		}
	}
	if len(shared) == 0 {
		return nil
	}

	type hit struct {
		pos   int
		score float64
	}
	hits := make([]hit, 0, len(shared))
	for pos, n := range shared {
		union := len(q) + ix.entries[pos].tokens - n
		hits = append(hits, hit{pos: pos, score: float64(n) / float64(union)})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].pos > hits[b].pos
	})

	out := make([]Result, 0, min(k, len(hits)))
	for _, h := range hits[:min(k, len(hits))] {
		out = append(out, Result{ID: ix.entries[h.pos].id, Score: h.score})
	}
	return out
}

// tokens returns the distinct usable tokens of s.
func (ix *Index) tokens(s string) map[string]struct{} {
	s = strings.ToLower(norm.NFKC.String(s))
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if ix.opts.minTokenRunes > 0 && utf8.RuneCountInString(w) < ix.opts.minTokenRunes {
			continue
		}
		if _, stop := ix.opts.stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
