// Package detect identifies which platform schema an export belongs to.
package detect

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

const (
	// DefaultThreshold is the minimum score for a structural match
	DefaultThreshold = 0.6

	// validateBoost is added when a parser's Validate accepts the content
	validateBoost = 0.2

	// keywordWeight is added per distinct keyword found in raw text
	keywordWeight = 0.2

	// textCap bounds text-scan scores below the default threshold
	textCap = 0.5

	// epsilon absorbs float summation error when comparing against the threshold
	epsilon = 1e-9
)

// Config holds detector configuration
type Config struct {
	Threshold float64
	Logger    *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		Logger:    slog.Default(),
	}
}

// Detector scores content against every registered parser.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	registry  driven.ParserRegistry
	threshold float64
	logger    *slog.Logger
}

// New creates a detector over a frozen parser registry.
func New(registry driven.ParserRegistry, cfg Config) *Detector {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Detector{
		registry:  registry,
		threshold: cfg.Threshold,
		logger:    cfg.Logger.With("component", "detector"),
	}
}

// Threshold returns the configured match threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Resolve honours a declared platform with full confidence and
// falls back to Detect otherwise. Validation of declared content is
// left to the caller.
func (d *Detector) Resolve(content []byte, declared domain.Platform) domain.DetectionResult {
	if declared.IsDeclared() {
		return domain.DetectionResult{
			Platform:   declared,
			Confidence: 1.0,
			Method:     domain.DetectionDeclared,
		}
	}
	return d.Detect(content)
}

// Detect never fails: content that matches nothing yields an unknown result.
// Identical bytes always produce identical results.
func (d *Detector) Detect(content []byte) domain.DetectionResult {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return domain.Unknown()
	}

	var result domain.DetectionResult
	if gjson.ValidBytes(trimmed) {
		result = d.structural(trimmed)
	} else {
		result = d.text(trimmed)
	}

	d.logger.Debug("detection finished",
		"platform", result.Platform,
		"confidence", result.Confidence,
		"method", result.Method,
		"suggested", result.Suggested,
	)
	return result
}

// structural scores JSON content on field fingerprints plus a Validate boost.
func (d *Detector) structural(content []byte) domain.DetectionResult {
	var (
		best      domain.Platform
		bestScore float64
	)

	for _, platform := range d.registry.Platforms() {
		parser, err := d.registry.Resolve(platform)
		if err != nil {
			continue
		}

		score := 0.0
		if fp, ok := parser.(driven.Fingerprinter); ok {
			score = fp.Fingerprint(content)
		}
		if parser.Validate(content) {
			score += validateBoost
		}
		score = clamp(score)

		// Strictly greater keeps the earlier registration on ties
		if score > bestScore+epsilon {
			best, bestScore = platform, score
		}
	}

	return d.decide(best, bestScore, domain.DetectionStructural)
}

// text scans non-JSON content for platform keywords.
func (d *Detector) text(content []byte) domain.DetectionResult {
	lower := strings.ToLower(string(content))

	var (
		best      domain.Platform
		bestScore float64
	)

	for _, platform := range d.registry.Platforms() {
		parser, err := d.registry.Resolve(platform)
		if err != nil {
			continue
		}
		fp, ok := parser.(driven.Fingerprinter)
		if !ok {
			continue
		}

		hits := 0
		seen := make(map[string]bool)
		for _, kw := range fp.Keywords() {
			kw = strings.ToLower(kw)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			if strings.Contains(lower, kw) {
				hits++
			}
		}

		score := float64(hits) * keywordWeight
		if score > textCap {
			score = textCap
		}
		if score > bestScore+epsilon {
			best, bestScore = platform, score
		}
	}

	return d.decide(best, bestScore, domain.DetectionText)
}

func (d *Detector) decide(best domain.Platform, score float64, method domain.DetectionMethod) domain.DetectionResult {
	if best == "" || score <= 0 {
		return domain.Unknown()
	}
	if score+epsilon >= d.threshold {
		return domain.DetectionResult{Platform: best, Confidence: score, Method: method}
	}

	res := domain.Unknown()
	res.Method = method
	res.Suggested = best
	res.SuggestedConfidence = score
	return res
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
