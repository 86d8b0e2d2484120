// Package client talks to a running installer API.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/3cpo-dev/appstore/pkg/api"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		// No overall timeout: streams last as long as an install.
		HTTP: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 30 * time.Second,
		}},
	}
}

// APIError is a non-2xx reply.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("installer api: %d %s", e.Status, e.Detail)
}

func (c *Client) newRequest(ctx context.Context, method, p string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/api"+p, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e api.ErrorResponse
	if json.Unmarshal(body, &e) != nil || e.Detail == "" {
		e.Detail = strings.TrimSpace(string(body))
	}
	return &APIError{Status: resp.StatusCode, Detail: e.Detail}
}

func (c *Client) List(ctx context.Context, osID string) ([]api.SoftwareItem, error) {
	p := "/software"
	if osID != "" {
		p += "?os_id=" + url.QueryEscape(osID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, p)
	if err != nil {
		return nil, err
	}
	var list api.SoftwareList
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Install starts (or attaches to) the install of key and returns the task id.
func (c *Client) Install(ctx context.Context, key string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/install/"+url.PathEscape(key))
	if err != nil {
		return "", err
	}
	var r api.InstallResponse
	if err := c.do(req, &r); err != nil {
		return "", err
	}
	return r.TaskID, nil
}

func (c *Client) Status(ctx context.Context, key string) (api.TaskStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/install/"+url.PathEscape(key)+"/status")
	if err != nil {
		return api.TaskStatus{}, err
	}
	var st api.TaskStatus
	err = c.do(req, &st)
	return st, err
}

// Stream calls fn for every output line until the server sends the end event.
func (c *Client) Stream(ctx context.Context, key string, fn func(line string)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/install/"+url.PathEscape(key)+"/stream")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("stream %s: %w", key, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return readEvents(resp.Body, fn)
}

// readEvents parses a text/event-stream body. Data lines of one event are
// joined with newlines; the "end" event stops reading.
func readEvents(r io.Reader, fn func(line string)) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64<<10), 4<<20)
	var event string
	var data []string
	for s.Scan() {
		line := s.Text()
		if line == "" {
			if event == api.EventEnd {
				return nil
			}
			if data != nil {
				fn(strings.Join(data, "\n"))
			}
			event, data = "", nil
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}
