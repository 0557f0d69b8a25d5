/**
 * Remote vision OCR engine.
 *
 * Delegates recognition to an HTTP vision service for low-quality scans the
 * local engine cannot handle. The service owns model selection; this client
 * only speaks the request/response contract.
 */

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
	"github.com/docuflow/docproc-worker/internal/logging"
)

const remoteName = "remote"

// RemoteEngine recognizes region images through an HTTP vision OCR service.
type RemoteEngine struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewRemoteEngine creates a client for the vision OCR service at baseURL.
func NewRemoteEngine(baseURL string, logger *logging.Logger) *RemoteEngine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RemoteEngine{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

func (r *RemoteEngine) Name() string { return remoteName }

// visionRequest is the request to the vision OCR endpoint.
type visionRequest struct {
	Image     string   `json:"image"`  // base64-encoded PNG
	Format    string   `json:"format"` // always "base64"
	Languages []string `json:"languages,omitempty"`
	RegionID  int      `json:"regionId,omitempty"`
}

// visionResponse is the service reply.
type visionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Tokens []visionToken `json:"tokens"`
	} `json:"data"`
}

type visionToken struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	BoundingBox struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"boundingBox"`
}

// Recognize posts the region image and maps the reply into tokens.
// Transport and service-side failures surface as engine-unavailable so the
// fallback chain can move on.
func (r *RemoteEngine) Recognize(ctx context.Context, input Input) ([]Token, error) {
	reqBody, err := json.Marshal(visionRequest{
		Image:     base64.StdEncoding.EncodeToString(input.Image),
		Format:    "base64",
		Languages: input.Languages,
		RegionID:  input.RegionID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/vision/ocr", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, perrors.NewEngineUnavailableError(remoteName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, perrors.NewEngineUnavailableError(remoteName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, perrors.NewEngineUnavailableError(remoteName,
			fmt.Errorf("vision service returned %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	var parsed visionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode vision response: %w", err)
	}
	if !parsed.Success {
		return nil, perrors.NewEngineUnavailableError(remoteName,
			fmt.Errorf("vision service error: %s", parsed.Message))
	}

	tokens := make([]Token, 0, len(parsed.Data.Tokens))
	for _, t := range parsed.Data.Tokens {
		if t.Text == "" {
			continue
		}
		tokens = append(tokens, Token{
			Text:       t.Text,
			Confidence: ClampConfidence(t.Confidence),
			Bounds: image.Rect(t.BoundingBox.X, t.BoundingBox.Y,
				t.BoundingBox.X+t.BoundingBox.Width, t.BoundingBox.Y+t.BoundingBox.Height),
			RegionID: input.RegionID,
		})
	}

	r.logger.Debug("remote recognition complete",
		"region", input.RegionID, "tokens", len(tokens))
	return tokens, nil
}

// HealthCheck verifies the vision service is reachable.
func (r *RemoteEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision service health check returned %d", resp.StatusCode)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
