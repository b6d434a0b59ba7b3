// Package client is a typed HTTP client for the legendary classifier API.
package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"legendary-classifier/internal/api"
	"legendary-classifier/internal/features"
	"legendary-classifier/internal/ml"
)

// APIError is a non-2xx reply. Detail comes from the {"detail": ...} body
// when the server sent one.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("legendary api: %d %s", e.StatusCode, e.Detail)
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: base, rest: r}
}

func (c *Client) Predict(ctx context.Context, stats features.StatVector) (*ml.PredictionResult, error) {
	result := &ml.PredictionResult{}
	if err := c.do(ctx, resty.MethodPost, "/predict", stats, nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) FeatureImportance(ctx context.Context) (*ml.ImportanceReport, error) {
	report := &ml.ImportanceReport{}
	if err := c.do(ctx, resty.MethodGet, "/feature-importance", nil, nil, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Client) Similar(ctx context.Context, stats features.StatVector) (*ml.SimilarReport, error) {
	report := &ml.SimilarReport{}
	if err := c.do(ctx, resty.MethodPost, "/similar-pokemon", stats, nil, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Client) Health(ctx context.Context) (*ml.HealthStatus, error) {
	health := &ml.HealthStatus{}
	if err := c.do(ctx, resty.MethodGet, "/health", nil, nil, health); err != nil {
		return nil, err
	}
	return health, nil
}

// History fetches recent predictions. limit <= 0 uses the server default.
func (c *Client) History(ctx context.Context, limit int) (*api.HistoryResponse, error) {
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	history := &api.HistoryResponse{}
	if err := c.do(ctx, resty.MethodGet, "/history", nil, params, history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, params map[string]string, result interface{}) error {
	apiErr := &api.ErrorResponse{}
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		detail := apiErr.Detail
		if detail == "" {
			detail = resp.String()
		}
		return &APIError{StatusCode: resp.StatusCode(), Detail: detail}
	}
	return nil
}
