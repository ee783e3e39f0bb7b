package scorer

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/riptide-project/riptide/internal/config"
)

// QueryAwareScorer combines BM25, URL signals, domain diversity, and
// content similarity into the composite relevance score used to reorder
// the frontier, plus a rolling-window early-stop decision.
type QueryAwareScorer struct {
	cfg config.ScorerConfig

	bm25       *BM25Scorer
	urlSignals *URLSignalAnalyzer
	diversity  *DomainDiversityAnalyzer
	queryTerms map[string]struct{}

	mu         sync.Mutex
	window     []float64
	windowSize int
}

// New builds a scorer for a fixed query, weighted per cfg.
func New(query string, cfg config.ScorerConfig) *QueryAwareScorer {
	terms := tokenize(query, cfg.UseStemming)
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return &QueryAwareScorer{
		cfg:        cfg,
		bm25:       NewBM25Scorer(query, cfg.BM25K1, cfg.BM25B, cfg.UseStemming),
		urlSignals: NewURLSignalAnalyzer(query, cfg.UseStemming),
		diversity:  NewDomainDiversityAnalyzer(),
		queryTerms: set,
		windowSize: cfg.RelevanceWindowSize,
	}
}

// RecordDocument folds a fetched document into the BM25 corpus and the
// domain-diversity counter. Call once per successful fetch.
func (s *QueryAwareScorer) RecordDocument(u *url.URL, content string) {
	s.bm25.UpdateCorpus(content)
	s.diversity.RecordPage(u.Hostname())
}

// contentSimilarity is a token-set Jaccard similarity between the query
// and doc; the tokenizer lowercases, strips non-alphanumerics, and keeps
// tokens longer than 2 characters.
func (s *QueryAwareScorer) contentSimilarity(doc string) float64 {
	if len(s.queryTerms) == 0 {
		return 0
	}
	docTerms := tokenize(doc, false)
	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		if len(t) > 2 {
			docSet[t] = struct{}{}
		}
	}
	if len(docSet) == 0 {
		return 0
	}

	intersect := 0
	for t := range s.queryTerms {
		if len(t) <= 2 {
			continue
		}
		if _, ok := docSet[t]; ok {
			intersect++
		}
	}
	union := len(docSet)
	for t := range s.queryTerms {
		if len(t) > 2 {
			if _, ok := docSet[t]; !ok {
				union++
			}
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersect) / float64(union)
}

// Score returns the composite relevance score S = alpha*BM25 +
// beta*URLSignals + gamma*DomainDiversity + delta*ContentSimilarity for a
// candidate URL/document pair, and records the score into the rolling
// early-stop window.
func (s *QueryAwareScorer) Score(u *url.URL, depth int, content string) float64 {
	bm25 := s.bm25.Score(content)
	urlScore := s.urlSignals.Score(u, depth)
	diversity := s.diversity.Score(u.Hostname())
	similarity := s.contentSimilarity(content)

	score := s.cfg.AlphaBM25*bm25 + s.cfg.BetaURLSignals*urlScore +
		s.cfg.GammaDomainDiversity*diversity + s.cfg.DeltaContentSimilarity*similarity

	s.recordRelevance(score)
	return score
}

func (s *QueryAwareScorer) recordRelevance(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = append(s.window, score)
	if len(s.window) > s.windowSize {
		s.window = s.window[len(s.window)-s.windowSize:]
	}
}

// ShouldStop reports whether the rolling window of the last N relevance
// scores is full and its mean falls below MinRelevanceThreshold. Below
// the window size, it never requests a stop.
func (s *QueryAwareScorer) ShouldStop() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.windowSize <= 0 || len(s.window) < s.windowSize {
		return false, ""
	}

	var sum float64
	for _, v := range s.window {
		sum += v
	}
	mean := sum / float64(len(s.window))
	if mean < s.cfg.MinRelevanceThreshold {
		return true, fmt.Sprintf("query-aware relevance window exhausted: mean relevance %.3f below %.3f",
			mean, s.cfg.MinRelevanceThreshold)
	}
	return false, ""
}

// PriorityBoost maps a [0,1]-ish score to a priority nudge used by the
// frontier when query-aware scoring is enabled.
func PriorityBoost(score float64) int {
	switch {
	case score >= 0.7:
		return 2
	case score >= 0.35:
		return 1
	default:
		return 0
	}
}
