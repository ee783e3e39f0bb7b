// Package scorer implements a composite relevance score:
// S = alpha*BM25 + beta*URLSignals + gamma*DomainDiversity + delta*ContentSimilarity,
// combining a classic BM25 term-frequency score with URL-shape signals,
// domain diversity, and content similarity to the running query.
package scorer

import (
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/kljensen/snowball"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases, strips non-alphanumerics, and optionally stems.
func tokenize(text string, stem bool) []string {
	lower := strings.ToLower(text)
	raw := tokenPattern.FindAllString(lower, -1)
	if !stem {
		return raw
	}
	out := make([]string, len(raw))
	for i, tok := range raw {
		if s, err := snowball.Stem(tok, "english", true); err == nil {
			out[i] = s
		} else {
			out[i] = tok
		}
	}
	return out
}

// BM25Scorer scores documents against a fixed query over an incrementally
// built corpus, using the standard per-term IDF and length-normalized term
// frequency formula.
type BM25Scorer struct {
	mu sync.Mutex

	queryTerms []string
	k1         float64
	b          float64
	stem       bool

	docFreq  map[string]int
	docCount int
	totalLen int
}

func NewBM25Scorer(query string, k1, b float64, stem bool) *BM25Scorer {
	return &BM25Scorer{
		queryTerms: tokenize(query, stem),
		k1:         k1,
		b:          b,
		stem:       stem,
		docFreq:    make(map[string]int),
	}
}

// UpdateCorpus folds doc's terms into the corpus statistics used for IDF
// and average document length. Call once per fetched document.
func (s *BM25Scorer) UpdateCorpus(doc string) {
	terms := tokenize(doc, s.stem)

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; !ok {
			s.docFreq[t]++
			seen[t] = struct{}{}
		}
	}
	s.docCount++
	s.totalLen += len(terms)
}

// Score returns the BM25 relevance of doc against the scorer's fixed
// query. An empty query or non-matching document scores 0.
func (s *BM25Scorer) Score(doc string) float64 {
	if len(s.queryTerms) == 0 {
		return 0
	}

	terms := tokenize(doc, s.stem)
	if len(terms) == 0 {
		return 0
	}

	termFreq := make(map[string]int, len(terms))
	for _, t := range terms {
		termFreq[t]++
	}

	s.mu.Lock()
	docCount := s.docCount
	avgLen := 1.0
	if docCount > 0 {
		avgLen = float64(s.totalLen) / float64(docCount)
	}
	dfSnapshot := make(map[string]int, len(s.queryTerms))
	for _, qt := range s.queryTerms {
		dfSnapshot[qt] = s.docFreq[qt]
	}
	s.mu.Unlock()

	docLen := float64(len(terms))
	var score float64

	for _, qt := range s.queryTerms {
		f, ok := termFreq[qt]
		if !ok || f == 0 {
			continue
		}

		df := dfSnapshot[qt]
		n := float64(docCount)
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		if idf < 0 {
			idf = 0
		}

		tf := float64(f)
		numerator := tf * (s.k1 + 1)
		denominator := tf + s.k1*(1-s.b+s.b*(docLen/avgLen))
		score += idf * (numerator / denominator)
	}

	return score
}
