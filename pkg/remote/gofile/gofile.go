// Package gofile implements remote.Store against the Gofile content API.
package gofile

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
	"github.com/fruitsalade/gofilefs/pkg/retry"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.gofile.io"

const backend = "gofile"

const (
	statusOK       = "ok"
	statusNotFound = "error-notFound"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string

	// Timeout bounds API calls. Downloads only wait this long for response
	// headers.
	Timeout     time.Duration
	RetryConfig retry.Config

	// RootID skips account discovery and mounts this folder instead of the
	// account root.
	RootID string
}

// Client talks to the Gofile API with an account token.
type Client struct {
	baseURL     string
	token       string
	rootID      string
	retryConfig retry.Config
	log         *zap.Logger

	httpClient     *http.Client
	downloadClient *http.Client

	// fetches coalesces concurrent reloads of one content ID.
	fetches singleflight.Group
}

var _ remote.Store = (*Client)(nil)

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		rootID:     cfg.RootID,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		// Bodies of downloads may stream for much longer than an API call;
		// only the caller's context bounds them.
		downloadClient: &http.Client{Transport: transport},
		retryConfig:    cfg.RetryConfig,
		log:            logging.Named(backend),
	}
}

// APIError is a non-ok status reported inside the JSON envelope.
type APIError struct {
	Status string
	Op     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gofile %s: %s", e.Op, e.Status)
}

// envelope wraps every API response.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type accountIDData struct {
	ID string `json:"id"`
}

type accountData struct {
	ID         string `json:"id"`
	RootFolder string `json:"rootFolder"`
}

// contentData is a file or folder. Children of a folder are keyed by ID.
type contentData struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Name       string                  `json:"name"`
	CreateTime int64                   `json:"createTime"`
	ModTime    int64                   `json:"modTime"`
	Size       int64                   `json:"size"`
	MD5        string                  `json:"md5"`
	Mimetype   string                  `json:"mimetype"`
	Link       string                  `json:"link"`
	Children   map[string]*contentData `json:"children"`
}

func (c *contentData) kind() (models.Kind, error) {
	switch c.Type {
	case "folder":
		return models.KindFolder, nil
	case "file":
		return models.KindFile, nil
	default:
		return 0, fmt.Errorf("content %s has unknown type %q", c.ID, c.Type)
	}
}

func (c *contentData) node() (*models.ContentNode, error) {
	kind, err := c.kind()
	if err != nil {
		return nil, err
	}
	n := &models.ContentNode{
		ID:        c.ID,
		Name:      c.Name,
		Kind:      kind,
		CreatedAt: time.Unix(c.CreateTime, 0).UTC(),
		Size:      c.Size,
		Hash:      c.MD5,
		MimeType:  c.Mimetype,
		Link:      c.Link,
	}
	if c.ModTime > 0 {
		n.ModTime = time.Unix(c.ModTime, 0).UTC()
	}
	return n, nil
}

// children returns the child nodes ordered by creation time, then ID.
func (c *contentData) children() ([]*models.ContentNode, error) {
	nodes := make([]*models.ContentNode, 0, len(c.Children))
	for id, child := range c.Children {
		if child.ID == "" {
			child.ID = id
		}
		n, err := child.node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *models.ContentNode) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return nodes, nil
}

// Root implements remote.Store. Without a configured RootID it discovers the
// account's root folder. The returned folder is not loaded; its first Reload
// fetches its contents.
func (c *Client) Root(ctx context.Context) (*models.ContentNode, error) {
	rootID := c.rootID
	if rootID == "" {
		var id accountIDData
		if err := c.getJSON(ctx, "getid", "/accounts/getid", &id); err != nil {
			return nil, err
		}
		var acct accountData
		if err := c.getJSON(ctx, "account", "/accounts/"+url.PathEscape(id.ID), &acct); err != nil {
			return nil, err
		}
		if acct.RootFolder == "" {
			return nil, fmt.Errorf("gofile account %s has no root folder", id.ID)
		}
		rootID = acct.RootFolder
		c.log.Debug("discovered root folder",
			zap.String("account", id.ID),
			zap.String("root", rootID))
	}

	return models.NewFolder(rootID, "", time.Time{}), nil
}

// Reload implements remote.Store.
func (c *Client) Reload(ctx context.Context, node *models.ContentNode) error {
	data, err := c.fetchContent(ctx, node.ID)
	if err != nil {
		return err
	}
	fresh, err := data.node()
	if err != nil {
		return err
	}
	if fresh.Kind != node.Kind {
		return fmt.Errorf("content %s changed from %s to %s", node.ID, node.Kind, fresh.Kind)
	}

	node.CopyMetadata(fresh)
	if node.IsFolder() {
		children, err := data.children()
		if err != nil {
			return err
		}
		node.MergeChildren(children)
	}
	return nil
}

// fetchContent loads one content record. Concurrent calls for the same ID
// share a single request; the result must not be modified.
func (c *Client) fetchContent(ctx context.Context, id string) (*contentData, error) {
	v, err, shared := c.fetches.Do(id, func() (any, error) {
		var data contentData
		if err := c.getJSON(ctx, "contents", "/contents/"+url.PathEscape(id), &data); err != nil {
			return nil, err
		}
		return &data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", id, err)
	}
	if shared {
		c.log.Debug("shared content fetch", zap.String("id", id))
	}
	return cloneContent(v.(*contentData)), nil
}

func cloneContent(src *contentData) *contentData {
	dst := *src
	if src.Children != nil {
		dst.Children = make(map[string]*contentData, len(src.Children))
		for id, child := range src.Children {
			cp := *child
			dst.Children[id] = &cp
		}
	}
	return &dst
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// getJSON fetches an API path and decodes the envelope's data into out.
func (c *Client) getJSON(ctx context.Context, op, apiPath string, out any) error {
	start := time.Now()
	_, err := retry.Do(ctx, c.retryConfig, backend+" "+op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.getJSONOnce(ctx, op, apiPath, out)
	})
	metrics.RecordRemoteRequest(backend, op, time.Since(start), err == nil || remote.IsNotFound(err))
	logging.WithContext(ctx).Named(backend).Debug("api request",
		zap.String("op", op),
		zap.String("path", apiPath),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

func (c *Client) getJSONOnce(ctx context.Context, op, apiPath string, out any) error {
	req, err := c.newRequest(ctx, c.baseURL+apiPath)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	switch {
	case resp.StatusCode == http.StatusNotFound || env.Status == statusNotFound:
		return remote.ErrContentNotFound
	case retry.RetryableStatus(resp.StatusCode):
		return retry.Retryable(fmt.Errorf("gofile %s: server returned %d", op, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("gofile %s: server returned %d", op, resp.StatusCode)
	case decodeErr != nil:
		return fmt.Errorf("gofile %s: decode response: %w", op, decodeErr)
	case env.Status != statusOK:
		return &APIError{Status: env.Status, Op: op}
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("gofile %s: decode data: %w", op, err)
	}
	return nil
}

// Download implements remote.Store. It streams the file's direct link.
func (c *Client) Download(ctx context.Context, node *models.ContentNode) (remote.Stream, error) {
	if !node.IsFile() {
		return nil, fmt.Errorf("download %s: not a file", node.ID)
	}
	if node.Link == "" {
		return nil, fmt.Errorf("download %s: no direct link", node.ID)
	}

	start := time.Now()
	resp, err := retry.Do(ctx, c.retryConfig, backend+" download", func(ctx context.Context) (*http.Response, error) {
		return c.downloadOnce(ctx, node.Link)
	})
	metrics.RecordRemoteRequest(backend, "download", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", node.ID, err)
	}

	enc := remote.EncodingFromContentType(resp.Header.Get("Content-Type"))
	logging.WithContext(ctx).Named(backend).Debug("download started",
		zap.String("id", node.ID),
		zap.Int64("length", resp.ContentLength),
		zap.String("encoding", enc))
	return remote.NewStream(resp.Body, enc), nil
}

func (c *Client) downloadOnce(ctx context.Context, link string) (*http.Response, error) {
	req, err := c.newRequest(ctx, link)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: "accountToken", Value: c.token})
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.Retryable(err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, remote.ErrContentNotFound
	case retry.RetryableStatus(resp.StatusCode):
		return nil, retry.Retryable(fmt.Errorf("server returned %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
}

// IsAPIError reports whether err carries an envelope status.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
