// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the protocol root, e.g. https://builds.example.com/api/.
	BaseURL string

	// Timeout bounds each request. Zero means one minute.
	Timeout time.Duration

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// Client is a Provider backed by the HTTP protocol.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient validates config and returns a client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("upstream: BaseURL is required")
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: parsing BaseURL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, http: httpClient}, nil
}

func (c *Client) ListRootBranches(ctx context.Context) ([]Branch, error) {
	var branches []Branch
	if err := c.get(ctx, "branches", nil, &branches); err != nil {
		return nil, fmt.Errorf("listing root branches: %w", err)
	}
	return branches, nil
}

func (c *Client) FindBuildDefinition(ctx context.Context, project, name string) (Definition, error) {
	var definition Definition
	path := "projects/" + url.PathEscape(project) + "/definitions/" + url.PathEscape(name)
	if err := c.get(ctx, path, nil, &definition); err != nil {
		return Definition{}, fmt.Errorf("definition %q in %s: %w", name, project, err)
	}
	return definition, nil
}

func (c *Client) GetBuild(ctx context.Context, uri string) (Build, error) {
	var build Build
	if err := c.get(ctx, "builds", url.Values{"uri": {uri}}, &build); err != nil {
		return Build{}, fmt.Errorf("build %q: %w", uri, err)
	}
	return build, nil
}

func (c *Client) QueryDefinitions(ctx context.Context, project string) ([]Definition, error) {
	var definitions []Definition
	if err := c.get(ctx, "projects/"+url.PathEscape(project)+"/definitions", nil, &definitions); err != nil {
		return nil, fmt.Errorf("definitions in %s: %w", project, err)
	}
	return definitions, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	reference, err := url.Parse(path)
	if err != nil {
		return err
	}
	target := c.base.ResolveReference(reference)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case response.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", target.Path, response.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", target.Path, err)
	}
	return nil
}
