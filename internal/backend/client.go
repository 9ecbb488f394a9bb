// Package backend talks to the exam REST backend that owns question banks and
// grading. Responses are validated before they reach session state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exam-runner/internal/model"
	"github.com/stemsi/exam-runner/internal/validator"
)

// Client errors.
var (
	ErrUnexpectedStatus = errors.New("backend returned unexpected status")
	ErrInvalidResponse  = errors.New("backend returned an invalid response")
)

const (
	maxResponseBytes = 8 << 20
	maxSnippetBytes  = 256
)

// StatusError carries the HTTP status of a failed backend call.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend status %d: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Client is an HTTP client for /api/exams/*.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client. timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "backend_client").Logger(),
	}
}

// CreateExam asks the backend for a fresh question set.
func (c *Client) CreateExam(ctx context.Context, token string, req model.ExamRequest) (*model.ExamPaper, error) {
	return c.fetchPaper(ctx, "create exam", "/api/exams/create", token, req)
}

// ReinitExam asks the backend for the question set of an exam being resumed.
func (c *Client) ReinitExam(ctx context.Context, token string, req model.ExamRequest) (*model.ExamPaper, error) {
	return c.fetchPaper(ctx, "reinit exam", "/api/exams/reinit", token, req)
}

func (c *Client) fetchPaper(ctx context.Context, op, path, token string, req model.ExamRequest) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	if err := c.post(ctx, op, path, token, req, &paper); err != nil {
		return nil, err
	}
	if err := validator.Struct(&paper); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidResponse, err)
	}
	return &paper, nil
}

// Validate submits the answers of a session for grading.
func (c *Client) Validate(ctx context.Context, token string, req model.ValidateRequest) (*model.ValidationResult, error) {
	if req.Data == nil {
		req.Data = []model.AnsweredEntry{}
	}

	var result model.ValidationResult
	if err := c.post(ctx, "validate exam", "/api/exams/validate", token, req, &result); err != nil {
		return nil, err
	}
	if err := validator.Struct(&result); err != nil {
		return nil, fmt.Errorf("validate exam: %w: %v", ErrInvalidResponse, err)
	}
	if result.ExamID != req.ExamID {
		return nil, fmt.Errorf("validate exam: %w: graded exam %d, submitted %d", ErrInvalidResponse, result.ExamID, req.ExamID)
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, op, path, token string, body, dst interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: snippet(payload, maxSnippetBytes)}
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidResponse, err)
	}
	return nil
}

// snippet returns at most n bytes of body without splitting a UTF-8 sequence.
func snippet(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return strings.ToValidUTF8(string(body), "")
}
