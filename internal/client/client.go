// Package client talks to the school records REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/models"
	"github.com/noah-isme/cbc-grading-api/internal/observability"
)

const maxErrorBody = 4 << 10

// Config configures the records API client.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	TrailingSlash bool
	UserAgent     string
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps 404 responses onto backend.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return backend.ErrNotFound
	}
	return nil
}

// Client implements backend.Backend over HTTP. Requests are never retried.
type Client struct {
	baseURL       *url.URL
	token         string
	trailingSlash bool
	userAgent     string
	http          *http.Client
	logger        zerolog.Logger
}

var _ backend.Backend = (*Client)(nil)

// New builds a client for the API rooted at cfg.BaseURL.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("records api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse records api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("records api base url must be http or https, got %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "cbc-grading-api"
	}

	return &Client{
		baseURL:       base,
		token:         strings.TrimSpace(cfg.Token),
		trailingSlash: cfg.TrailingSlash,
		userAgent:     userAgent,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "records_client").Logger(),
	}, nil
}

func (c *Client) GetAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	err := c.do(ctx, "get_assignment", http.MethodGet, fmt.Sprintf("/assignments/%d", id), nil, nil, &assignment)
	return assignment, err
}

func (c *Client) ListSubmissions(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := c.doList(ctx, "list_submissions", fmt.Sprintf("/assignments/%d/submissions", assignmentID), nil, &submissions)
	return submissions, err
}

type assessmentPayload struct {
	StudentID         uint      `json:"student"`
	LearningOutcomeID uint      `json:"learning_outcome"`
	CompetencyLevel   cbc.Level `json:"competency_level"`
	TeacherID         uint      `json:"teacher"`
	TeacherComment    string    `json:"teacher_comment"`
	Evidence          string    `json:"evidence"`
	SubmissionID      *uint     `json:"assignment_submission,omitempty"`
	AssessedAt        string    `json:"assessment_date"`
}

func (c *Client) CreateAssessment(ctx context.Context, assessment *models.CompetencyAssessment) error {
	payload := assessmentPayload{
		StudentID:         assessment.StudentID,
		LearningOutcomeID: assessment.LearningOutcomeID,
		CompetencyLevel:   assessment.CompetencyLevel,
		TeacherID:         assessment.TeacherID,
		TeacherComment:    assessment.TeacherComment,
		Evidence:          assessment.Evidence,
		SubmissionID:      assessment.SubmissionID,
		AssessedAt:        assessment.AssessedAt.UTC().Format(time.RFC3339),
	}

	var created struct {
		ID uint `json:"id"`
	}
	if err := c.do(ctx, "create_assessment", http.MethodPost, "/competency-assessments", nil, payload, &created); err != nil {
		return err
	}
	assessment.ID = created.ID
	return nil
}

func (c *Client) PatchSubmission(ctx context.Context, id uint, patch backend.SubmissionPatch) error {
	if patch.Empty() {
		return nil
	}
	return c.do(ctx, "patch_submission", http.MethodPatch, fmt.Sprintf("/assignment-submissions/%d", id), nil, patch, nil)
}

func (c *Client) ListAssessments(ctx context.Context, query backend.AssessmentQuery) ([]models.CompetencyAssessment, error) {
	var assessments []models.CompetencyAssessment
	err := c.doList(ctx, "list_assessments", "/competency-assessments", studentAreaQuery(query), &assessments)
	return assessments, err
}

func (c *Client) GetCurriculum(ctx context.Context, learningAreaID uint) (cbc.AreaNode, error) {
	var area cbc.AreaNode
	err := c.do(ctx, "get_curriculum", http.MethodGet, fmt.Sprintf("/learning-areas/%d/tree", learningAreaID), nil, nil, &area)
	return area, err
}

func (c *Client) ListQuizSubmissions(ctx context.Context, query backend.AssessmentQuery) ([]models.QuizSubmission, error) {
	var submissions []models.QuizSubmission
	err := c.doList(ctx, "list_quiz_submissions", "/quiz-submissions", studentAreaQuery(query), &submissions)
	return submissions, err
}

func studentAreaQuery(query backend.AssessmentQuery) url.Values {
	values := url.Values{}
	values.Set("student", strconv.FormatUint(uint64(query.StudentID), 10))
	if query.LearningAreaID > 0 {
		values.Set("learning_area", strconv.FormatUint(uint64(query.LearningAreaID), 10))
	}
	return values
}

// doList decodes either a bare JSON array or a paginated {"results": [...]} page.
func (c *Client) doList(ctx context.Context, operation, path string, query url.Values, out interface{}) error {
	var raw json.RawMessage
	if err := c.do(ctx, operation, http.MethodGet, path, query, nil, &raw); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return fmt.Errorf("%s: decode page: %w", operation, err)
		}
		trimmed = page.Results
	}
	if len(trimmed) == 0 || string(trimmed) == "null" {
		trimmed = []byte("[]")
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%s: decode list: %w", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.endpoint(path, query)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.BackendRequests().WithLabelValues(operation, "transport_error").Inc()
		c.logger.Warn().Err(err).Str("operation", operation).Msg("records api request failed")
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	observability.BackendRequests().WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("operation", operation).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(started)).
		Msg("records api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if c.trailingSlash && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
