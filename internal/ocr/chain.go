/**
 * OCR fallback chain.
 *
 * Engines are attempted in preference order. A result is accepted as soon as
 * it has tokens and clears the confidence bar; an unavailable engine is
 * skipped, never fatal for the region. At most one attempt per chain member
 * bounds the worst case.
 */

package ocr

import (
	"context"
	"fmt"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
	"github.com/docuflow/docproc-worker/internal/logging"
)

// ChainResult is the outcome of running the fallback chain for one region.
type ChainResult struct {
	Tokens     []Token
	EngineUsed string
	Attempts   int
	Warnings   []string
	// Unavailable is set when every chain member failed with an
	// engine-unavailable condition; the region produced nothing and the
	// document may be Failed if this holds for all regions.
	Unavailable bool
}

// Chain runs a preference-ordered list of engines against region inputs.
type Chain struct {
	registry      *Registry
	order         []string
	minConfidence float64
	logger        *logging.Logger
}

// NewChain builds a fallback chain over the registry. An empty order means
// no engine will be attempted.
func NewChain(registry *Registry, order []string, minConfidence float64, logger *logging.Logger) *Chain {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Chain{
		registry:      registry,
		order:         append([]string(nil), order...),
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Recognize tries each engine in order until one yields an acceptable result.
// When no attempt clears the confidence bar, the best-seen result is returned
// with a warning rather than discarded.
func (c *Chain) Recognize(ctx context.Context, input Input) ChainResult {
	res := ChainResult{}
	unavailable := 0

	var bestTokens []Token
	var bestEngine string
	bestMean := -1.0

	for _, name := range c.order {
		if err := ctx.Err(); err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("region %d: recognition canceled: %v", input.RegionID, err))
			break
		}

		engine, ok := c.registry.Get(name)
		if !ok {
			unavailable++
			res.Attempts++
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("region %d: engine %q is not registered", input.RegionID, name))
			continue
		}

		res.Attempts++
		tokens, err := engine.Recognize(ctx, input)
		if err != nil {
			if perrors.IsCode(err, perrors.ErrorEngineUnavailable) {
				unavailable++
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("region %d: engine %q unavailable: %v", input.RegionID, name, err))
				continue
			}
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("region %d: engine %q failed: %v", input.RegionID, name, err))
			continue
		}

		tokens = normalize(tokens, input.RegionID)
		mean := MeanConfidence(tokens)
		c.logger.Debug("engine attempt",
			"region", input.RegionID, "engine", name,
			"tokens", len(tokens), "mean_confidence", mean)

		if len(tokens) > 0 && mean >= c.minConfidence {
			res.Tokens = tokens
			res.EngineUsed = name
			return res
		}

		if mean > bestMean {
			bestMean = mean
			bestTokens = tokens
			bestEngine = name
		}
	}

	if len(bestTokens) > 0 {
		res.Tokens = bestTokens
		res.EngineUsed = bestEngine
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("region %d: no engine reached confidence %.2f; keeping best result from %q (%.2f)",
				input.RegionID, c.minConfidence, bestEngine, bestMean))
		return res
	}

	if res.Attempts > 0 && unavailable == res.Attempts {
		res.Unavailable = true
	}
	return res
}

// normalize clamps confidences and stamps the region id on every token.
func normalize(tokens []Token, regionID int) []Token {
	out := make([]Token, len(tokens))
	for i, t := range tokens {
		t.Confidence = ClampConfidence(t.Confidence)
		t.RegionID = regionID
		out[i] = t
	}
	return out
}
