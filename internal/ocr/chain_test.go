package ocr

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
)

func tokensWithConfidence(conf float64, words ...string) []Token {
	out := make([]Token, 0, len(words))
	for i, w := range words {
		out = append(out, Token{
			Text:       w,
			Confidence: conf,
			Bounds:     image.Rect(i*20, 0, i*20+18, 10),
		})
	}
	return out
}

func TestChainFirstEngineWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticEngine("primary", func(Input) ([]Token, error) {
		return tokensWithConfidence(0.9, "hello"), nil
	}))
	reg.Register(NewStaticEngine("secondary", func(Input) ([]Token, error) {
		t.Fatal("secondary should not be attempted")
		return nil, nil
	}))

	chain := NewChain(reg, []string{"primary", "secondary"}, 0.5, nil)
	res := chain.Recognize(context.Background(), Input{RegionID: 1})

	assert.Equal(t, "primary", res.EngineUsed)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, 1, res.Tokens[0].RegionID)
	assert.False(t, res.Unavailable)
}

func TestChainFallsThroughUnavailableEngine(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticEngine("down", func(Input) ([]Token, error) {
		return nil, perrors.NewEngineUnavailableError("down", fmt.Errorf("connection refused"))
	}))
	reg.Register(NewStaticEngine("up", func(Input) ([]Token, error) {
		return tokensWithConfidence(0.8, "recovered"), nil
	}))

	chain := NewChain(reg, []string{"down", "up"}, 0.5, nil)
	res := chain.Recognize(context.Background(), Input{RegionID: 3})

	assert.Equal(t, "up", res.EngineUsed)
	assert.Equal(t, 2, res.Attempts)
	assert.NotEmpty(t, res.Warnings)
	assert.False(t, res.Unavailable)
}

func TestChainKeepsBestBelowConfidenceBar(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticEngine("weak", func(Input) ([]Token, error) {
		return tokensWithConfidence(0.2, "blurry"), nil
	}))
	reg.Register(NewStaticEngine("lessweak", func(Input) ([]Token, error) {
		return tokensWithConfidence(0.4, "fuzzy"), nil
	}))

	chain := NewChain(reg, []string{"weak", "lessweak"}, 0.9, nil)
	res := chain.Recognize(context.Background(), Input{RegionID: 1})

	// Neither cleared the bar; the better of the two is kept with a warning.
	assert.Equal(t, "lessweak", res.EngineUsed)
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, "fuzzy", res.Tokens[0].Text)
	assert.NotEmpty(t, res.Warnings)
}

func TestChainAllUnavailable(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticEngine("a", func(Input) ([]Token, error) {
		return nil, perrors.NewEngineUnavailableError("a", nil)
	}))

	chain := NewChain(reg, []string{"a", "not-registered"}, 0.5, nil)
	res := chain.Recognize(context.Background(), Input{RegionID: 1})

	assert.True(t, res.Unavailable)
	assert.Empty(t, res.Tokens)
	assert.Equal(t, 2, res.Attempts)
}

func TestChainEmptyOrder(t *testing.T) {
	chain := NewChain(NewRegistry(), nil, 0.5, nil)
	res := chain.Recognize(context.Background(), Input{RegionID: 1})
	assert.Empty(t, res.Tokens)
	assert.Zero(t, res.Attempts)
	assert.False(t, res.Unavailable)
}

func TestChainCanceledContext(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticEngine("never", func(Input) ([]Token, error) {
		t.Fatal("engine should not run after cancellation")
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := NewChain(reg, []string{"never"}, 0.5, nil)
	res := chain.Recognize(ctx, Input{RegionID: 1})
	assert.Empty(t, res.Tokens)
	assert.NotEmpty(t, res.Warnings)
}

func TestChainClampsConfidence(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticEngine("hot", func(Input) ([]Token, error) {
		return []Token{{Text: "x", Confidence: 1.7}}, nil
	}))

	chain := NewChain(reg, []string{"hot"}, 0.5, nil)
	res := chain.Recognize(context.Background(), Input{RegionID: 9})
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, 1.0, res.Tokens[0].Confidence)
	assert.Equal(t, 9, res.Tokens[0].RegionID)
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticEngine("zeta", nil))
	reg.Register(NewStaticEngine("alpha", nil))
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}
