// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httprepo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultAPIVersion is used when Config.APIVersion is empty.
const DefaultAPIVersion = "v1"

// Config configures a Client.
type Config struct {
	// BaseURL is the repository root, without the API version.
	BaseURL string

	APIVersion string

	// Timeout bounds each request. Zero means ten minutes, which
	// accommodates large installer uploads.
	Timeout time.Duration

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// Client talks to one repository.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient validates config and returns a client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("httprepo: BaseURL is required")
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("httprepo: parsing BaseURL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httprepo: BaseURL %q must be http or https", config.BaseURL)
	}
	version := strings.Trim(config.APIVersion, "/")
	if version == "" {
		version = DefaultAPIVersion
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + version + "/"

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 10 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, http: httpClient}, nil
}

// String returns the versioned base URL.
func (c *Client) String() string { return c.base.String() }

// ListTopLevel returns the names of the top-level directories.
func (c *Client) ListTopLevel(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "Directory", nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("httprepo: listing top level: %w", err)
	}
	return parseList(body)
}

// ListSubdirectories returns the names of the directories under path.
func (c *Client) ListSubdirectories(ctx context.Context, path string) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "GetDirectoryNames", url.Values{"path": {path}}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("httprepo: listing %s: %w", path, err)
	}
	return parseList(body)
}

// CreateDirectory creates path.
func (c *Client) CreateDirectory(ctx context.Context, path string) error {
	if _, err := c.do(ctx, http.MethodPut, "Directory", url.Values{"path": {path}}, nil, ""); err != nil {
		return fmt.Errorf("httprepo: creating %s: %w", path, err)
	}
	return nil
}

// DeleteDirectory deletes path and everything under it.
func (c *Client) DeleteDirectory(ctx context.Context, path string) error {
	if _, err := c.do(ctx, http.MethodDelete, "Directory", url.Values{"path": {path}}, nil, ""); err != nil {
		return fmt.Errorf("httprepo: deleting %s: %w", path, err)
	}
	return nil
}

// UploadFile uploads the local file into the repository directory
// path as a single multipart part named "file". The part's
// Content-Type is detected from the file contents.
func (c *Client) UploadFile(ctx context.Context, path, localFile string) error {
	mime, err := mimetype.DetectFile(localFile)
	if err != nil {
		return fmt.Errorf("httprepo: detecting type of %s: %w", localFile, err)
	}
	file, err := os.Open(localFile)
	if err != nil {
		return fmt.Errorf("httprepo: %w", err)
	}
	defer file.Close()

	// Stream the body so installers are never held in memory.
	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(localFile)))
		header.Set("Content-Type", mime.String())
		part, err := form.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	_, err = c.do(ctx, http.MethodPost, "Upload", url.Values{"path": {path}}, reader, form.FormDataContentType())
	// Unblock the writer goroutine if the request ended early.
	reader.Close()
	if err != nil {
		return fmt.Errorf("httprepo: uploading %s to %s: %w", filepath.Base(localFile), path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	target := c.base.ResolveReference(&url.URL{Path: endpoint})
	if query != nil {
		target.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, target.Path, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		message := strings.TrimSpace(string(data))
		if len(message) > 512 {
			message = message[:512]
		}
		return nil, fmt.Errorf("%s %s: %s: %s", method, target.Path, response.Status, message)
	}
	return data, nil
}

// parseList decodes a JSON string array, falling back to the legacy
// "[a, b, c]" form.
func parseList(body []byte) ([]string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(trimmed), &names); err == nil {
		return names, nil
	}

	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, fmt.Errorf("httprepo: unrecognized listing %q", truncate(trimmed, 80))
	}
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return nil, nil
	}
	for _, field := range strings.Split(inner, ",") {
		name := strings.Trim(strings.TrimSpace(field), `"'`)
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
