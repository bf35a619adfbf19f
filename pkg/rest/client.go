// Package rest is the HTTP side of the rc2 server: bulk info, file and image
// downloads, uploads, saves and workspace management.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/retry"
)

// Client talks to the rc2 REST API with retry and bearer auth.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
	Transport   http.RoundTripper
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: logging.NewRoundTripper(transport),
		},
		retryConfig: cfg.RetryConfig,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current bearer token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

func (c *Client) applyAuth(req *http.Request) {
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimPrefix(path, "/"), body)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)
	return req, nil
}

// do sends req and records metrics. Network failures and retryable statuses
// come back as retry.Retryable errors; the caller owns resp.Body on success.
func (c *Client) do(req *http.Request, endpoint string, ok ...int) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRESTRequest(endpoint, 0, time.Since(start))
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, retry.Retryable(err)
	}
	metrics.RecordRESTRequest(endpoint, resp.StatusCode, time.Since(start))

	for _, code := range ok {
		if resp.StatusCode == code {
			return resp, nil
		}
	}

	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	serr := statusError(resp)
	if retry.RetryableStatus(resp.StatusCode) {
		return nil, retry.Retryable(serr)
	}
	return nil, serr
}

// FetchBulkInfo fetches the full Project/Workspace/File snapshot.
func (c *Client) FetchBulkInfo(ctx context.Context) (*models.BulkInfo, error) {
	return retry.DoWithResult(ctx, c.retryConfig, func() (*models.BulkInfo, error) {
		req, err := c.newRequest(ctx, http.MethodGet, "info", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.do(req, "info", http.StatusOK)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var bulk models.BulkInfo
		if err := json.NewDecoder(resp.Body).Decode(&bulk); err != nil {
			return nil, fmt.Errorf("decode bulk info: %w", err)
		}
		if err := bulk.Validate(); err != nil {
			return nil, err
		}
		return &bulk, nil
	})
}

// FetchFile downloads a file's contents. If versionTag is set it is sent as
// an If-None-Match precondition and ErrNotModified is returned when the
// server copy matches. The caller must close the returned body.
func (c *Client) FetchFile(ctx context.Context, fileID int, versionTag string) (io.ReadCloser, int64, error) {
	type result struct {
		body io.ReadCloser
		size int64
	}
	r, err := retry.DoWithResult(ctx, c.retryConfig, func() (result, error) {
		req, err := c.newRequest(ctx, http.MethodGet, "file/"+strconv.Itoa(fileID), nil)
		if err != nil {
			return result{}, err
		}
		req.Header.Set("Accept", "application/octet-stream")
		if versionTag != "" {
			req.Header.Set("If-None-Match", strconv.Quote(versionTag))
		}

		resp, err := c.do(req, "file", http.StatusOK)
		if err != nil {
			return result{}, err
		}
		return result{body: resp.Body, size: resp.ContentLength}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return r.body, r.size, nil
}

// FetchImage downloads a generated image as PNG bytes.
func (c *Client) FetchImage(ctx context.Context, workspaceID, imageID int) ([]byte, error) {
	return retry.DoWithResult(ctx, c.retryConfig, func() ([]byte, error) {
		path := fmt.Sprintf("workspaces/%d/images/%d", workspaceID, imageID)
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "image/png")

		resp, err := c.do(req, "image", http.StatusOK)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retry.Retryable(err)
		}
		return data, nil
	})
}

// UploadFile creates a file in a workspace from r. onProgress, if set,
// receives the running count of bytes sent. The request is only retried
// when r is an io.Seeker.
func (c *Client) UploadFile(ctx context.Context, workspaceID int, name string, r io.Reader, size int64, onProgress func(sent int64)) (*models.File, error) {
	seeker, canRewind := r.(io.Seeker)
	cfg := c.retryConfig
	if !canRewind {
		cfg.MaxAttempts = 1
	}

	file, err := retry.DoWithResult(ctx, cfg, func() (*models.File, error) {
		if canRewind {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
		}
		body := &progressReader{r: r, onProgress: onProgress}
		req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("workspaces/%d/files/upload", workspaceID), body)
		if err != nil {
			return nil, err
		}
		req.ContentLength = size
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Rc2-Filename", name)

		resp, err := c.do(req, "upload", http.StatusCreated)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var f models.File
		if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
			return nil, fmt.Errorf("decode uploaded file: %w", err)
		}
		return &f, nil
	})

	metrics.RecordFileUpload("import", size, err == nil)
	return file, err
}

// PushFile replaces a file's contents. The cached version is sent as an
// If-Match precondition; a 409 comes back as a ConflictError.
func (c *Client) PushFile(ctx context.Context, file *models.File, contents []byte) (*models.File, error) {
	updated, err := retry.DoWithResult(ctx, c.retryConfig, func() (*models.File, error) {
		req, err := c.newRequest(ctx, http.MethodPut, "file/"+strconv.Itoa(file.ID), bytes.NewReader(contents))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("If-Match", strconv.Quote(file.VersionTag()))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, retry.Retryable(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			var f models.File
			if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
				return nil, fmt.Errorf("decode saved file: %w", err)
			}
			return &f, nil
		case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
			ce := &ConflictError{FileID: file.ID, ExpectedVersion: file.Version}
			var current models.File
			if json.NewDecoder(resp.Body).Decode(&current) == nil {
				ce.CurrentVersion = current.Version
			}
			return nil, ce
		case retry.RetryableStatus(resp.StatusCode):
			return nil, retry.Retryable(statusError(resp))
		default:
			return nil, statusError(resp)
		}
	})

	metrics.RecordFileUpload("save", int64(len(contents)), err == nil)
	return updated, err
}

// CreateWorkspaceResult is the server response to a workspace creation.
type CreateWorkspaceResult struct {
	WorkspaceID int             `json:"wspaceId"`
	BulkInfo    models.BulkInfo `json:"bulkInfo"`
}

// CreateWorkspace creates a workspace in a project and returns the refreshed bulk info.
func (c *Client) CreateWorkspace(ctx context.Context, projectID int, name string) (*CreateWorkspaceResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("proj/%d/wspace", projectID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Rc2-WorkspaceName", name)

	resp, err := c.do(req, "create_workspace", http.StatusCreated)
	if err != nil {
		if se, ok := AsStatus(err); ok && se.Code == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("workspace %q already exists: %w", name, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var result CreateWorkspaceResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode create workspace response: %w", err)
	}
	return &result, nil
}

// DeleteWorkspace removes a workspace. A workspace that is already gone is not an error.
func (c *Client) DeleteWorkspace(ctx context.Context, projectID, workspaceID int) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("proj/%d/wspace/%d", projectID, workspaceID), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req, "delete_workspace", http.StatusOK, http.StatusNoContent, http.StatusNotFound)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	})
}

type progressReader struct {
	r          io.Reader
	sent       int64
	onProgress func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.sent)
		}
	}
	return n, err
}
