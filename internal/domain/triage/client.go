package triage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/kalims/queue-engine/internal/domain/queue"
)

// Scorer produces a severity assessment for a visit's intake data.
type Scorer interface {
	Assess(ctx context.Context, req AssessRequest) (*Assessment, error)
}

// AssessRequest is the payload sent to the scoring backend.
type AssessRequest struct {
	Symptoms             string     `json:"symptoms"`
	Vitals               VitalSigns `json:"vitals"`
	PatientCategory      string     `json:"patientCategory"`
	VulnerabilityFactors []string   `json:"vulnerabilityFactors"`
}

type aiResponse struct {
	SeverityScore     float64  `json:"severityScore"`
	RecommendedAction string   `json:"recommendedAction"`
	CriticalFlags     []string `json:"criticalFlags"`
}

// AIClient calls the external AI triage service. Timeouts and transport
// failures surface as dependency errors so callers can tell "the AI said X"
// apart from "the AI never answered".
type AIClient struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewAIClient builds the client. The timeout bounds each scoring call; the
// engine never waits on the AI service past it.
func NewAIClient(endpoint, apiKey string, timeout time.Duration, logger zerolog.Logger) *AIClient {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey)

	return &AIClient{http: client, log: logger}
}

// Assess posts the intake data for scoring. The returned assessment's score
// is clamped to [0,1] regardless of what the service replied.
func (c *AIClient) Assess(ctx context.Context, req AssessRequest) (*Assessment, error) {
	var out aiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/triage")
	if err != nil {
		c.log.Error().Err(err).Msg("triage scoring call failed")
		return nil, &queue.DependencyError{
			Dependency: "ai",
			Timeout:    isTimeout(err),
			Err:        err,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &queue.DependencyError{
			Dependency: "ai",
			Err:        fmt.Errorf("triage service returned %d", resp.StatusCode()),
		}
	}

	score := out.SeverityScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return &Assessment{
		SeverityScore:     score,
		RecommendedAction: out.RecommendedAction,
		CriticalFlags:     out.CriticalFlags,
		Source:            "ai",
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
