// Package symbolindex implements the symbol-aware BM25 index of spec.md
// §4.4: standard Okapi BM25 over tokenised file content, with additive
// boosts for basename, exported-symbol, defined-symbol and any-symbol
// term matches, and a per-term penalty for files that only import a
// term without defining or exporting anything for it.
//
// Tokenisation is grounded on the teacher's internal/core/postings.go
// ASCII-identifier scan (tokens of any length are kept); stemming follows
// internal/semantic/stemmer.go's porter2 use (3-char floor: shorter
// tokens are kept unstemmed);
// fuzzy fallback follows internal/semantic/fuzzy_matcher.go and
// internal/mcp/symbol_type_resolver.go's use of go-edlib for near-miss
// vocabulary lookups when a query term has no exact postings.
package symbolindex

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/codeforge/retrieval-core/internal/types"
)

const (
	// BM25K1 and BM25B are the tuning constants fixed by spec.md §4.4.
	BM25K1 = 1.2
	BM25B  = 0.75

	minTokenLength = 3
	// minBoostTermLength excludes query terms of length <= 2 from symbol
	// matching only; BM25 itself still scores them.
	minBoostTermLength = 3

	boostBasename       = 2.0
	boostExportedSymbol = 3.0
	boostDefinedSymbol  = 1.5
	boostAnySymbol      = 0.5
	importOnlyPenalty   = 0.3

	fuzzyThreshold = 0.82 // Jaro-Winkler similarity floor for the fallback
)

// definingKinds are the "class/function/method" kinds spec.md §4.4
// calls "Defined" symbols, a stricter set than "any symbol".
var definingKinds = map[types.SymbolKind]bool{
	types.KindFunction: true,
	types.KindMethod:   true,
	types.KindClass:    true,
}

// Hit is one scored file from Search.
type Hit struct {
	FileHash types.Hash
	FilePath string
	Score    float64
}

type docStats struct {
	path          string
	basename      string // lowercased, for substring matching
	modTime       time.Time
	length        int // token count, BM25's |D|
	exportedTerms map[string]bool
	definedTerms  map[string]bool // function/method/class names
	anyTerms      map[string]bool // every symbol name, any kind
	importTerms   map[string]bool
	hasExported   bool // true if this file exports anything at all
}

// Index is a symbol-aware BM25 index. Safe for concurrent Search calls;
// AddDocument/RemoveDocument take an exclusive lock, matching the
// teacher's PostingsIndex discipline of locking only around map writes.
type Index struct {
	mu         sync.RWMutex
	postings   map[string]map[types.Hash]int // term -> fileHash -> frequency
	docs       map[types.Hash]*docStats
	totalTerms int
	vocabulary map[string]bool // for fuzzy fallback candidate generation
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		postings:   make(map[string]map[types.Hash]int),
		docs:       make(map[types.Hash]*docStats),
		vocabulary: make(map[string]bool),
	}
}

// AddDocument indexes or re-indexes one file. Calling it twice for the
// same hash first removes the prior entry, keeping the index a pure
// function of (fileHash -> content, symbols, imports).
func (idx *Index) AddDocument(hash types.Hash, path string, modTime time.Time, content []byte, symbols []types.Symbol, imports []types.Import) {
	terms := tokenize(content)

	exportedTerms := make(map[string]bool)
	definedTerms := make(map[string]bool)
	anyTerms := make(map[string]bool)
	hasExported := false
	for _, s := range symbols {
		if s.Exported {
			hasExported = true
		}
		for _, t := range tokenize([]byte(s.Name)) {
			anyTerms[t] = true
			if definingKinds[s.Kind] {
				definedTerms[t] = true
			}
			if s.Exported {
				exportedTerms[t] = true
			}
		}
	}

	importTerms := make(map[string]bool)
	for _, im := range imports {
		for _, t := range tokenize([]byte(im.Spec)) {
			importTerms[t] = true
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(hash)

	freq := make(map[string]int)
	for _, t := range terms {
		freq[t]++
		idx.vocabulary[t] = true
	}
	for t, f := range freq {
		bucket, ok := idx.postings[t]
		if !ok {
			bucket = make(map[types.Hash]int)
			idx.postings[t] = bucket
		}
		bucket[hash] = f
	}

	idx.docs[hash] = &docStats{
		path:          path,
		basename:      strings.ToLower(basename(path)),
		modTime:       modTime,
		length:        len(terms),
		exportedTerms: exportedTerms,
		definedTerms:  definedTerms,
		anyTerms:      anyTerms,
		importTerms:   importTerms,
		hasExported:   hasExported,
	}
	idx.totalTerms += len(terms)
}

// RemoveDocument drops hash's postings and stats, used when a file is
// tombstoned or its content changes before re-adding.
func (idx *Index) RemoveDocument(hash types.Hash) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(hash)
}

func (idx *Index) removeLocked(hash types.Hash) {
	prior, ok := idx.docs[hash]
	if !ok {
		return
	}
	idx.totalTerms -= prior.length
	for term, bucket := range idx.postings {
		if _, present := bucket[hash]; present {
			delete(bucket, hash)
			if len(bucket) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	delete(idx.docs, hash)
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search scores every document containing at least one query term, or
// whose basename/symbols match a boost-eligible term, and returns the
// top k by descending score. A query term absent from the vocabulary is
// retried against the nearest known term by Jaro-Winkler similarity
// (fuzzyThreshold floor), so a single typo does not return zero hits.
func (idx *Index) Search(query string, k int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(idx.totalTerms) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	terms := tokenize([]byte(query))
	resolved := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := idx.postings[t]; ok {
			resolved = append(resolved, t)
			continue
		}
		if alt, ok := idx.nearestTermLocked(t); ok {
			resolved = append(resolved, alt)
		}
	}
	if len(resolved) == 0 {
		return nil
	}

	scores := make(map[types.Hash]float64)
	for _, term := range resolved {
		bucket := idx.postings[term]
		df := len(bucket)
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n-df)+0.5)/(float64(df)+0.5))
		for hash, tf := range bucket {
			doc := idx.docs[hash]
			denom := float64(tf) + BM25K1*(1-BM25B+BM25B*float64(doc.length)/avgLen)
			contribution := idf * (float64(tf) * (BM25K1 + 1)) / denom
			if doc.importTerms[term] && !doc.definedTerms[term] && !doc.exportedTerms[term] && !doc.hasExported {
				contribution *= importOnlyPenalty
			}
			scores[hash] += contribution
		}
	}

	boostTerms := make([]string, 0, len(resolved))
	for _, t := range resolved {
		if len(t) > minBoostTermLength-1 {
			boostTerms = append(boostTerms, t)
		}
	}
	for hash, doc := range idx.docs {
		boost := 0.0
		for _, term := range boostTerms {
			if strings.Contains(doc.basename, term) {
				boost += boostBasename
			}
			switch {
			case doc.exportedTerms[term]:
				boost += boostExportedSymbol
			case doc.definedTerms[term]:
				boost += boostDefinedSymbol
			case doc.anyTerms[term]:
				boost += boostAnySymbol
			}
		}
		if boost == 0 {
			continue
		}
		scores[hash] += boost
	}

	hits := make([]Hit, 0, len(scores))
	for hash, score := range scores {
		doc := idx.docs[hash]
		hits = append(hits, Hit{FileHash: hash, FilePath: doc.path, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		di, dj := idx.docs[hits[i].FileHash], idx.docs[hits[j].FileHash]
		if !di.modTime.Equal(dj.modTime) {
			return di.modTime.After(dj.modTime)
		}
		if len(hits[i].FilePath) != len(hits[j].FilePath) {
			return len(hits[i].FilePath) < len(hits[j].FilePath)
		}
		return hits[i].FilePath < hits[j].FilePath
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// nearestTermLocked finds the vocabulary entry closest to t by
// Jaro-Winkler similarity. Caller must hold idx.mu.
func (idx *Index) nearestTermLocked(t string) (string, bool) {
	best := ""
	bestScore := 0.0
	for candidate := range idx.vocabulary {
		score, err := edlib.StringsSimilarity(t, candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	if bestScore >= fuzzyThreshold {
		return best, true
	}
	return "", false
}

// tokenize scans content for ASCII identifier runs (letters, digits,
// underscore), lowercases and stems each token >= minTokenLength.
// Shorter tokens are kept verbatim (unstemmed) rather than dropped, so
// short identifiers like "io" or "db" still match.
func tokenize(content []byte) []string {
	var tokens []string
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		raw := strings.ToLower(string(content[start:end]))
		if len(raw) >= minTokenLength {
			raw = porter2.Stem(raw)
		}
		tokens = append(tokens, raw)
		start = -1
	}
	for i, b := range content {
		if isIdentByte(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(content))
	return tokens
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
