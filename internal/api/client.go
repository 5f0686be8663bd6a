package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"netrisk/internal/analysis"
	"netrisk/internal/models"
)

// Client talks to a running server.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the server at base, e.g. http://127.0.0.1:8000.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Start asks the server to begin capturing on iface and returns the result status.
func (c *Client) Start(iface string) (string, error) {
	path := "/api/packets/start"
	if iface != "" {
		path += "?iface=" + url.QueryEscape(iface)
	}
	var resp ActionResponse
	err := c.do(http.MethodPost, path, &resp)
	return resp.Status, err
}

// Stop asks the server to end the running session.
func (c *Client) Stop() (string, error) {
	var resp ActionResponse
	err := c.do(http.MethodPost, "/api/packets/stop", &resp)
	return resp.Status, err
}

// Reset clears the server's session.
func (c *Client) Reset() error {
	return c.do(http.MethodDelete, "/api/packets/reset", nil)
}

// Latest fetches the most recent records.
func (c *Client) Latest(limit int) ([]models.PacketRecord, error) {
	var resp LatestResponse
	if err := c.do(http.MethodGet, "/api/packets/latest?limit="+strconv.Itoa(limit), &resp); err != nil {
		return nil, err
	}
	return resp.Packets, nil
}

// Status fetches the session status.
func (c *Client) Status() (models.Status, error) {
	var st models.Status
	err := c.do(http.MethodGet, "/api/packets/status", &st)
	return st, err
}

// Summary fetches the session summary.
func (c *Client) Summary(top int) (analysis.Summary, error) {
	var sum analysis.Summary
	err := c.do(http.MethodGet, "/api/packets/summary?top="+strconv.Itoa(top), &sum)
	return sum, err
}

func (c *Client) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &e) == nil && e.Detail != "" {
			return errors.Errorf("%s %s: %s: %s", method, path, resp.Status, e.Detail)
		}
		return errors.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", path)
}
