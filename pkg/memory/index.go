package memory

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// BM25 defaults.
const (
	DefaultBM25K1 = 1.2
	DefaultBM25B  = 0.75
)

// TextIndex ranks long-term entries against a text query with BM25.
type TextIndex struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	// term -> docs containing it
	postings map[string]map[int]struct{}
	// doc -> term frequencies
	termFreqs map[int]map[string]int
	docLens   map[int]int

	totalLen  int
	stopWords map[string]struct{}
}

// NewTextIndex creates an empty index.
func NewTextIndex(k1, b float64) *TextIndex {
	return &TextIndex{
		k1:        k1,
		b:         b,
		postings:  make(map[string]map[int]struct{}),
		termFreqs: make(map[int]map[string]int),
		docLens:   make(map[int]int),
		stopWords: defaultStopWords(),
	}
}

// IndexLongTerm builds an index whose document IDs are store positions.
// Content, location and related actors are all searchable.
func IndexLongTerm(entries []LongTermEntry) *TextIndex {
	idx := NewTextIndex(DefaultBM25K1, DefaultBM25B)
	for i, e := range entries {
		idx.Add(i, e.Content+" "+e.Location+" "+strings.Join(e.RelatedActors, " "))
	}
	return idx
}

// Add indexes text under id, replacing any previous text for id.
func (idx *TextIndex) Add(id int, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.termFreqs[id]; exists {
		idx.removeLocked(id)
	}

	tokens := idx.tokenize(text)
	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}
	idx.termFreqs[id] = freqs
	idx.docLens[id] = len(tokens)
	idx.totalLen += len(tokens)

	for term := range freqs {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[int]struct{})
		}
		idx.postings[term][id] = struct{}{}
	}
}

// Remove drops id from the index.
func (idx *TextIndex) Remove(id int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *TextIndex) removeLocked(id int) {
	freqs, ok := idx.termFreqs[id]
	if !ok {
		return
	}
	for term := range freqs {
		if docs, ok := idx.postings[term]; ok {
			delete(docs, id)
			if len(docs) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	idx.totalLen -= idx.docLens[id]
	delete(idx.termFreqs, id)
	delete(idx.docLens, id)
}

// Len returns the number of indexed documents.
func (idx *TextIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.termFreqs)
}

// Hit is one search result.
type Hit struct {
	ID    int     `json:"index"`
	Score float64 `json:"score"`
}

// Search returns up to topK documents with a positive score, best first.
// Ties are broken by ascending id.
func (idx *TextIndex) Search(query string, topK int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.termFreqs) == 0 || topK <= 0 {
		return nil
	}
	terms := idx.tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	avgDL := idx.avgDocLenLocked()
	candidates := make(map[int]struct{})
	for _, term := range terms {
		for id := range idx.postings[term] {
			candidates[id] = struct{}{}
		}
	}

	hits := make([]Hit, 0, len(candidates))
	for id := range candidates {
		if s := idx.scoreLocked(id, terms, avgDL); s > 0 {
			hits = append(hits, Hit{ID: id, Score: s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

// Similar returns documents sharing vocabulary with id, excluding id.
func (idx *TextIndex) Similar(id int, topK int) []Hit {
	idx.mu.RLock()
	freqs := idx.termFreqs[id]
	terms := make([]string, 0, len(freqs))
	for t := range freqs {
		terms = append(terms, t)
	}
	idx.mu.RUnlock()

	sort.Strings(terms)
	hits := idx.Search(strings.Join(terms, " "), topK+1)
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.ID != id {
			out = append(out, h)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Overlap returns the Jaccard similarity of two documents' vocabularies.
func (idx *TextIndex) Overlap(a, b int) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fa, fb := idx.termFreqs[a], idx.termFreqs[b]
	if len(fa) == 0 || len(fb) == 0 {
		return 0
	}
	shared := 0
	for t := range fa {
		if _, ok := fb[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(fa)+len(fb)-shared)
}

func (idx *TextIndex) avgDocLenLocked() float64 {
	if len(idx.termFreqs) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.termFreqs))
}

// scoreLocked computes the BM25 score of one document. Read lock held.
func (idx *TextIndex) scoreLocked(id int, terms []string, avgDL float64) float64 {
	docLen := float64(idx.docLens[id])
	freqs := idx.termFreqs[id]
	n := float64(len(idx.termFreqs))
	if avgDL == 0 {
		avgDL = 1
	}

	score := 0.0
	for _, term := range terms {
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}
		df := float64(len(idx.postings[term]))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
		score += idf * tf * (idx.k1 + 1) / (tf + idx.k1*(1-idx.b+idx.b*docLen/avgDL))
	}
	return score
}

// tokenize lowercases text, splits on anything that is not a letter or
// digit, and drops stop words. Han characters are single tokens.
func (idx *TextIndex) tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := make([]string, 0, len(text)/4)
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		cur.Reset()
		if _, stop := idx.stopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// String is for debugging.
func (h Hit) String() string {
	return strconv.Itoa(h.ID) + ":" + strconv.FormatFloat(h.Score, 'f', 3, 64)
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "can", "to", "of", "in", "for", "on",
		"with", "at", "by", "from", "as", "into", "during", "before", "after",
		"then", "and", "but", "or", "not", "so", "all", "any", "some", "no",
		"only", "than", "too", "very", "just", "if", "when", "where", "how",
		"what", "which", "who", "this", "that", "these", "those", "i", "me",
		"my", "we", "our", "you", "your", "he", "him", "his", "she", "her",
		"it", "its", "they", "them", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
