/**
 * Tesseract OCR engine.
 *
 * Free, offline recognition via gosseract. Used as the default chain head;
 * slower remote engines pick up where its confidence falls short.
 */

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
)

const tesseractName = "tesseract"

// TesseractEngine recognizes region images with a local Tesseract install.
type TesseractEngine struct {
	languages []string
}

// TesseractConfig holds Tesseract engine configuration.
type TesseractConfig struct {
	// Languages are traineddata codes, e.g. "eng". Empty defaults to eng.
	Languages []string
}

// NewTesseractEngine creates the Tesseract-backed engine.
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractEngine{languages: langs}
}

func (t *TesseractEngine) Name() string { return tesseractName }

// Recognize extracts word-level tokens with bounding boxes and confidences.
func (t *TesseractEngine) Recognize(ctx context.Context, input Input) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input.Image) == 0 {
		return nil, fmt.Errorf("empty region image")
	}

	client := gosseract.NewClient()
	defer client.Close()

	langs := input.Languages
	if len(langs) == 0 {
		langs = t.languages
	}
	if err := client.SetLanguage(langs...); err != nil {
		return nil, perrors.NewEngineUnavailableError(tesseractName, err)
	}

	if err := client.SetImageFromBytes(input.Image); err != nil {
		return nil, fmt.Errorf("set region image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, perrors.NewEngineUnavailableError(tesseractName, err)
	}

	tokens := make([]Token, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{
			Text:       word,
			Confidence: ClampConfidence(b.Confidence / 100),
			Bounds:     b.Box,
			RegionID:   input.RegionID,
		})
	}
	return tokens, nil
}
