package services

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/docuquery/docuquery/model"
)

// BM25 parameters
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var tokenRe = regexp.MustCompile(`\b\w+\b`)

// Tokenize lowercases and splits text into word tokens. Queries and
// documents must use the same tokenizer for scores to line up.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

type lexDoc struct {
	text    string
	page    int
	length  int
	termFreq map[string]int
}

// LexicalIndex is an in-process BM25 index over tokenized chunks. Ingest
// workers are the only writers; query handlers read a consistent snapshot
// under the read lock.
type LexicalIndex struct {
	mu       sync.RWMutex
	docs     []lexDoc
	docFreq  map[string]int
	totalLen int
}

// NewLexicalIndex creates an empty index
func NewLexicalIndex() *LexicalIndex {
	return &LexicalIndex{docFreq: make(map[string]int)}
}

// AddDocuments indexes chunk texts with their metadata. Readers observe
// either the pre- or post-add snapshot, never a partial one.
func (idx *LexicalIndex) AddDocuments(chunks []model.SemanticChunk) {
	if len(chunks) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, chunk := range chunks {
		tokens := Tokenize(chunk.Text)
		if len(tokens) == 0 {
			continue
		}
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for term := range tf {
			idx.docFreq[term]++
		}
		idx.docs = append(idx.docs, lexDoc{
			text:     chunk.Text,
			page:     chunk.Page,
			length:   len(tokens),
			termFreq: tf,
		})
		idx.totalLen += len(tokens)
	}
}

// Size returns the number of indexed documents
func (idx *LexicalIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search scores the query against all documents with BM25 and returns the
// top-k results with positive scores.
func (idx *LexicalIndex) Search(query string, topK int) []model.RetrievalResult {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(idx.totalLen) / float64(n)

	scores := make([]float64, n)
	for _, term := range terms {
		df, ok := idx.docFreq[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for i, doc := range idx.docs {
			tf := doc.termFreq[term]
			if tf == 0 {
				continue
			}
			num := float64(tf) * (bm25K1 + 1)
			den := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgLen)
			scores[i] += idf * num / den
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	hits := make([]scored, 0, n)
	for i, s := range scores {
		if s > 0 {
			hits = append(hits, scored{idx: i, score: s})
		}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]model.RetrievalResult, len(hits))
	for i, h := range hits {
		results[i] = model.RetrievalResult{
			Text:  idx.docs[h.idx].text,
			Page:  idx.docs[h.idx].page,
			Score: h.score,
		}
	}
	return results
}
