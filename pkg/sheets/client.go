// Package sheets provides a minimal client for the Google Sheets values API:
// reading a worksheet's header row and appending rows. Retry policy lives in
// the caller, so every request here is a single round trip.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the spreadsheet operations the ledger needs.
type Client interface {
	// Header returns the first row of the worksheet.
	Header(ctx context.Context, spreadsheetID, worksheet string) ([]string, error)
	// Append appends rows after the last row of the worksheet and returns
	// the number of rows written.
	Append(ctx context.Context, spreadsheetID, worksheet string, rows [][]string) (int, error)
}

// StatusError is returned for any non-2xx API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sheets: status %d: %s", e.Code, e.Body)
}

// Option configures the sheets client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	accessToken string
	baseURL     string
	http        *http.Client
}

// NewClient creates a Google Sheets values client authenticated with an
// OAuth access token.
func NewClient(accessToken string, opts ...Option) Client {
	c := &httpClient{
		accessToken: accessToken,
		baseURL:     "https://sheets.googleapis.com/v4/spreadsheets",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type valueRange struct {
	Values [][]string `json:"values"`
}

type appendResponse struct {
	Updates struct {
		UpdatedRows int `json:"updatedRows"`
	} `json:"updates"`
}

func (c *httpClient) Header(ctx context.Context, spreadsheetID, worksheet string) ([]string, error) {
	rng := url.PathEscape(fmt.Sprintf("%s!1:1", worksheet))
	reqURL := fmt.Sprintf("%s/%s/values/%s", c.baseURL, url.PathEscape(spreadsheetID), rng)

	body, err := c.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, eris.Wrap(err, "sheets: unmarshal header response")
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	return vr.Values[0], nil
}

func (c *httpClient) Append(ctx context.Context, spreadsheetID, worksheet string, rows [][]string) (int, error) {
	rng := url.PathEscape(fmt.Sprintf("%s!A:A", worksheet))
	reqURL := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		c.baseURL, url.PathEscape(spreadsheetID), rng)

	payload, err := json.Marshal(valueRange{Values: rows})
	if err != nil {
		return 0, eris.Wrap(err, "sheets: marshal append payload")
	}

	body, err := c.do(ctx, http.MethodPost, reqURL, payload)
	if err != nil {
		return 0, err
	}

	var ar appendResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return 0, eris.Wrap(err, "sheets: unmarshal append response")
	}
	return ar.Updates.UpdatedRows, nil
}

func (c *httpClient) do(ctx context.Context, method, reqURL string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
