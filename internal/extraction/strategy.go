// Package extraction implements the Composition Engine: a
// strategy-composition layer (chain/parallel/fallback/best) fronting
// concrete extractors, with Union and BestContent mergers.
package extraction

import "context"

// Content is the normalized output of one extraction strategy.
type Content struct {
	Title                string
	Content              string
	Summary              string
	URL                  string
	StrategyUsed         string
	ExtractionConfidence float64
}

// StrategyResult is what a single strategy call produces.
type StrategyResult struct {
	Content  Content
	Quality  float64
	Metadata map[string]any
}

// Strategy is one concrete extraction implementation (HTML metadata fusion,
// xpath-based, structured-text, ...).
type Strategy interface {
	Name() string
	Extract(ctx context.Context, html, url string) (*StrategyResult, error)
}
