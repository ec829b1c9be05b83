package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// maxFetchBytes caps how much of a remote resource is captured as step output.
const maxFetchBytes = 10 << 20 // 10MB

// FetchResource performs an HTTP GET and captures the response body.
// Params: url (required).
type FetchResource struct {
	client *http.Client
}

// NewFetchResource creates a fetch adapter with a default HTTP client.
func NewFetchResource() *FetchResource {
	return &FetchResource{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithClient swaps the HTTP client, used by tests to stub the network.
func (a *FetchResource) WithClient(client *http.Client) *FetchResource {
	a.client = client
	return a
}

func (a *FetchResource) Name() string { return models.OpFetchResource }

func (a *FetchResource) Invoke(ctx context.Context, params map[string]string) (Output, error) {
	url, err := requireParam(params, "url")
	if err != nil {
		return Output{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Output{}, fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Output{}, fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Output{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	return Output{Value: string(body), Ref: url}, nil
}
