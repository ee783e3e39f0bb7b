// Package adaptivestop implements the Adaptive Stop Engine: a
// sliding window over recent pages' unique-content gain, combined with
// heuristic site-type classification, decides when a crawl has stopped
// finding meaningfully new content.
package adaptivestop

import (
	"fmt"
	"sync"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/types"
)

// SiteType classifies the kind of site being crawled, used to scale the
// minimum-gain threshold: a multiplier above 1 (news, social media, blog)
// raises the threshold so the crawl stops sooner, a multiplier below 1
// (ecommerce, documentation) lowers it so the crawl runs longer.
type SiteType int

const (
	SiteUnknown SiteType = iota
	SiteNews
	SiteBlog
	SiteSocialMedia
	SiteDocumentation
	SiteECommerce
)

func (s SiteType) String() string {
	switch s {
	case SiteNews:
		return "news"
	case SiteBlog:
		return "blog"
	case SiteSocialMedia:
		return "social_media"
	case SiteDocumentation:
		return "documentation"
	case SiteECommerce:
		return "ecommerce"
	default:
		return "unknown"
	}
}

// qualityRingSize is the depth of the rolling quality sample used both for
// site-type classification and the quality-threshold stop check.
const qualityRingSize = 10

// pageSample is a per-page quality observation feeding both the content
// window and the site-type classifier.
type pageSample struct {
	uniqueChars int
	linkCount   int
	quality     float64
}

// Decision is returned by ShouldStop.
type Decision struct {
	Stop     bool
	Reason   string
	SiteType SiteType
}

// Stats is a snapshot of the engine's internal state for observability.
type Stats struct {
	PagesAnalyzed      int
	AverageGain        float64
	ConsecutiveLowGain int
	SiteType           SiteType
}

// Engine tracks content gain over a sliding window and decides whether to
// stop crawling a site.
type Engine struct {
	mu sync.Mutex

	cfg config.AdaptiveStopConfig

	window  *types.ContentWindow
	samples []pageSample

	consecutiveLowGain int
	pagesAnalyzed      int

	siteType        SiteType
	siteTypeSamples int
}

func NewEngine(cfg config.AdaptiveStopConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		window: types.NewContentWindow(cfg.WindowSize),
	}
}

// RecordPage folds one fetched page's content into the sliding window and
// the site-type classifier. uniqueChars is the count of characters unique
// relative to the window; linkCount and quality feed
// classification and quality-weighted gain.
func (e *Engine) RecordPage(uniqueChars, linkCount int, quality float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pagesAnalyzed++
	e.window.Add(int(float64(uniqueChars) * clamp01(quality+0.5)))

	e.samples = append(e.samples, pageSample{
		uniqueChars: uniqueChars,
		linkCount:   linkCount,
		quality:     quality,
	})
	if len(e.samples) > qualityRingSize {
		e.samples = e.samples[len(e.samples)-qualityRingSize:]
	}
	e.recalculateSiteType()
}

// ShouldStop evaluates the current window against the adaptive threshold
// and returns a stop decision with a human-readable reason.
func (e *Engine) ShouldStop() Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pagesAnalyzed < e.cfg.MinPagesBeforeStop {
		return Decision{Stop: false, Reason: "below min_pages_before_stop", SiteType: e.siteType}
	}
	if e.window.Len() < 2 {
		return Decision{Stop: false, Reason: "fewer than two content samples", SiteType: e.siteType}
	}

	threshold := e.adaptiveThreshold()
	avgGain := e.window.AverageGain()

	if avgGain < threshold {
		e.consecutiveLowGain++
	} else {
		e.consecutiveLowGain = 0
	}

	if e.consecutiveLowGain >= e.cfg.Patience {
		return Decision{
			Stop:     true,
			Reason:   fmt.Sprintf("Low content gain: avg %.1f below threshold %.1f for %d consecutive windows", avgGain, threshold, e.consecutiveLowGain),
			SiteType: e.siteType,
		}
	}

	if e.cfg.EnableQualityScoring && len(e.samples) >= 5 {
		var sumQuality float64
		for _, s := range e.samples {
			sumQuality += s.quality
		}
		avgQuality := sumQuality / float64(len(e.samples))
		if avgQuality < e.cfg.QualityThreshold {
			return Decision{
				Stop:     true,
				Reason:   fmt.Sprintf("content quality below threshold: avg %.2f < %.2f", avgQuality, e.cfg.QualityThreshold),
				SiteType: e.siteType,
			}
		}
	}

	return Decision{Stop: false, Reason: "content gain within threshold", SiteType: e.siteType}
}

// Stats returns a snapshot for observability/debugging.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		PagesAnalyzed:      e.pagesAnalyzed,
		AverageGain:        e.window.AverageGain(),
		ConsecutiveLowGain: e.consecutiveLowGain,
		SiteType:           e.siteType,
	}
}

// Reset clears all accumulated state, used between crawl runs.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window = types.NewContentWindow(e.cfg.WindowSize)
	e.samples = nil
	e.consecutiveLowGain = 0
	e.pagesAnalyzed = 0
	e.siteType = SiteUnknown
	e.siteTypeSamples = 0
}

// adaptiveThreshold scales the configured base threshold by the detected
// site type's multiplier, then adjusts it against the recent average: a
// much-lower-than-expected average tightens the threshold, a much-higher
// average loosens it.
func (e *Engine) adaptiveThreshold() float64 {
	base := e.cfg.MinGainThreshold
	mult := e.siteMultiplier()
	threshold := base * mult

	avg := e.window.AverageGain()
	switch {
	case avg < threshold*0.5:
		threshold *= 0.7
	case avg > threshold*2.0:
		threshold *= 1.2
	}
	return threshold
}

func (e *Engine) siteMultiplier() float64 {
	hints := e.cfg.SiteTypeHints
	switch e.siteType {
	case SiteNews:
		return orDefault(hints.News, 1.5)
	case SiteECommerce:
		return orDefault(hints.ECommerce, 0.7)
	case SiteBlog:
		return orDefault(hints.Blog, 1.2)
	case SiteDocumentation:
		return orDefault(hints.Documentation, 0.9)
	case SiteSocialMedia:
		return orDefault(hints.SocialMedia, 1.8)
	default:
		return orDefault(hints.Default, 1.0)
	}
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// recalculateSiteType re-classifies from the averages over every sample in
// the quality ring (up to the last qualityRingSize pages, once at least 3
// exist), using heuristic thresholds on average unique characters, link
// count, and quality score.
func (e *Engine) recalculateSiteType() {
	if len(e.samples) < 3 {
		return
	}

	var sumChars, sumLinks float64
	var sumQuality float64
	for _, s := range e.samples {
		sumChars += float64(s.uniqueChars)
		sumLinks += float64(s.linkCount)
		sumQuality += s.quality
	}
	n := float64(len(e.samples))
	avgChars := sumChars / n
	avgLinks := sumLinks / n
	avgQuality := sumQuality / n

	switch {
	case avgLinks > 40 && avgChars < 600:
		e.siteType = SiteSocialMedia
	case avgChars > 3000 && avgQuality > 0.7 && avgLinks < 15:
		e.siteType = SiteDocumentation
	case avgLinks > 25 && avgChars < 1500:
		e.siteType = SiteECommerce
	case avgChars > 1500 && avgQuality > 0.6:
		e.siteType = SiteNews
	case avgChars > 800:
		e.siteType = SiteBlog
	default:
		e.siteType = SiteUnknown
	}
	e.siteTypeSamples++
}

// CalculateQualityScore derives a [0,1] content-quality estimate from basic
// text heuristics: word/sentence structure, length, HTML-artifact leakage,
// and internal link density.
func CalculateQualityScore(text string, wordCount, sentenceCount, internalLinks int, htmlArtifacts bool) float64 {
	score := 0.5

	if wordCount > 0 && sentenceCount > 0 {
		avgWordsPerSentence := float64(wordCount) / float64(sentenceCount)
		if avgWordsPerSentence >= 8 && avgWordsPerSentence <= 30 {
			score += 0.2
		}
	}

	switch {
	case wordCount > 300:
		score += 0.15
	case wordCount < 50:
		score -= 0.2
	}

	if htmlArtifacts {
		score -= 0.25
	}

	if internalLinks > 0 && internalLinks < 20 {
		score += 0.1
	}

	if len(text) > 5000 {
		score += 0.05
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
