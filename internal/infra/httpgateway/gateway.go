// Package httpgateway talks to a remote submission service over REST.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Client is shared by every student gateway; it carries no credentials itself.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Gateways returns a factory that forwards each student's bearer token.
func (c *Client) Gateways() app.GatewayFactory {
	return func(_, token string) app.SubmissionGateway {
		return &Gateway{client: c, token: token}
	}
}

// Gateway is one student's view of the remote submission service.
type Gateway struct {
	client *Client
	token  string
}

func (g *Gateway) Submit(ctx context.Context, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.SubmitReceipt{}, errors.Wrap(err, "encode submission")
	}
	resp, err := g.do(ctx, http.MethodPost, g.client.submissionsURL(quizID), bytes.NewReader(body))
	if err != nil {
		return domain.SubmitReceipt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.SubmitReceipt{}, responseError(resp)
	}
	var receipt domain.SubmitReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return domain.SubmitReceipt{}, errors.Wrap(err, "decode submission receipt")
	}
	return receipt, nil
}

func (g *Gateway) FetchMySubmission(ctx context.Context, quizID string) (*domain.SubmissionRecord, error) {
	resp, err := g.do(ctx, http.MethodGet, g.client.submissionsURL(quizID)+"/me", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}
	var record domain.SubmissionRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, errors.Wrap(err, "decode submission")
	}
	return &record, nil
}

func (g *Gateway) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.client.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, target)
	}
	return resp, nil
}

func (c *Client) submissionsURL(quizID string) string {
	return c.baseURL + "/quizzes/" + url.PathEscape(quizID) + "/submissions"
}

// responseError prefers the server's own message so students see something readable.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return errors.New(body.Message)
		}
		if body.Error != "" {
			return errors.New(body.Error)
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		return errors.New(text)
	}
	return errors.Errorf("submission service returned %s", resp.Status)
}
