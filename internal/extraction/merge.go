package extraction

import "fmt"

// Merger combines multiple per-strategy results into one.
type Merger interface {
	Merge(results []*StrategyResult, minConfidence float64) *StrategyResult
}

// UnionMerger concatenates content, prefix-disambiguates metadata by
// strategy index, averages confidence, and takes the title from the first
// qualifying result.
type UnionMerger struct{}

func (UnionMerger) Merge(results []*StrategyResult, minConfidence float64) *StrategyResult {
	var filtered []*StrategyResult
	for _, r := range results {
		if r != nil && r.Content.ExtractionConfidence >= minConfidence {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	merged := &StrategyResult{Metadata: make(map[string]any)}
	var contentParts []string
	var confSum float64

	for i, r := range filtered {
		contentParts = append(contentParts, r.Content.Content)
		confSum += r.Content.ExtractionConfidence
		for k, v := range r.Metadata {
			merged.Metadata[fmt.Sprintf("%s_%d", k, i)] = v
		}
	}

	merged.Content = Content{
		Title:                filtered[0].Content.Title,
		Content:              joinNonEmpty(contentParts, "\n\n---\n\n"),
		URL:                  filtered[0].Content.URL,
		StrategyUsed:         "union_merger",
		ExtractionConfidence: confSum / float64(len(filtered)),
	}
	merged.Quality = merged.Content.ExtractionConfidence
	return merged
}

// BestContentConfig tunes BestContentMerger tie-breaking.
type BestContentConfig struct {
	PreferByConfidence bool // if false, prefer longest content instead
}

// BestContentMerger picks the longest title, the best content (by length
// or confidence per config), and the longest summary across results.
type BestContentMerger struct {
	Config BestContentConfig
}

func (m BestContentMerger) Merge(results []*StrategyResult, minConfidence float64) *StrategyResult {
	var filtered []*StrategyResult
	for _, r := range results {
		if r != nil && r.Content.ExtractionConfidence >= minConfidence {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	best := filtered[0]
	bestTitle := best.Content.Title
	bestSummary := best.Content.Summary
	bestContent := best

	for _, r := range filtered[1:] {
		if len(r.Content.Title) > len(bestTitle) {
			bestTitle = r.Content.Title
		}
		if len(r.Content.Summary) > len(bestSummary) {
			bestSummary = r.Content.Summary
		}
		if m.Config.PreferByConfidence {
			if r.Content.ExtractionConfidence > bestContent.Content.ExtractionConfidence {
				bestContent = r
			}
		} else if len(r.Content.Content) > len(bestContent.Content.Content) {
			bestContent = r
		}
	}

	inputs := make([]string, len(filtered))
	for i, r := range filtered {
		inputs[i] = r.Content.StrategyUsed
	}

	return &StrategyResult{
		Content: Content{
			Title:                bestTitle,
			Content:              bestContent.Content.Content,
			Summary:              bestSummary,
			URL:                  best.Content.URL,
			StrategyUsed:         "best_content_merger",
			ExtractionConfidence: bestContent.Content.ExtractionConfidence,
		},
		Quality:  bestContent.Quality,
		Metadata: map[string]any{"inputs": inputs},
	}
}

func joinNonEmpty(parts []string, sep string) string {
	var out string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}
