// Package elmo is a minimal client for the e-Connect alarm panel API.
package elmo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// Item is an area or an input of the alarm panel
type Item struct {
	Index int
	Name  string
}

// Status splits areas and inputs by their current state, in upstream order
type Status struct {
	AreasArmed    []Item
	AreasDisarmed []Item
	InputsAlerted []Item
	InputsWait    []Item
}

// HTTPError is returned when the panel answers with a non-2xx status
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Client talks to a single vendor endpoint. It keeps the session obtained by Auth.
type Client struct {
	baseURL    string
	vendor     string
	httpClient *http.Client
	sessionID  string
}

// NewClient creates a client for the given endpoint and vendor
func NewClient(baseURL, vendor string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		vendor:     vendor,
		httpClient: httpClient,
	}
}

// Auth obtains a session token for the given credentials
func (c *Client) Auth(ctx context.Context, username, password string) error {
	params := url.Values{}
	params.Set("username", username)
	params.Set("password", password)
	params.Set("domain", c.vendor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/login?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	body, err := c.do(req)
	if err != nil {
		return err
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return fmt.Errorf("invalid login response: %w", err)
	}
	session := string(v.GetStringBytes("SessionId"))
	if session == "" {
		return fmt.Errorf("login response has no SessionId")
	}

	c.sessionID = session
	return nil
}

// Check returns the status of areas and inputs
func (c *Client) Check(ctx context.Context) (*Status, error) {
	if c.sessionID == "" {
		return nil, fmt.Errorf("client is not authenticated")
	}

	areas, err := c.fetchItems(ctx, "/api/areas")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch areas: %w", err)
	}
	inputs, err := c.fetchItems(ctx, "/api/inputs")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inputs: %w", err)
	}

	status := &Status{}
	for _, a := range areas {
		if !a.GetBool("InUse") {
			continue
		}
		item := toItem(a)
		if a.GetBool("Armed") {
			status.AreasArmed = append(status.AreasArmed, item)
		} else {
			status.AreasDisarmed = append(status.AreasDisarmed, item)
		}
	}
	for _, in := range inputs {
		if !in.GetBool("InUse") {
			continue
		}
		item := toItem(in)
		if in.GetBool("Alarm") {
			status.InputsAlerted = append(status.InputsAlerted, item)
		} else {
			status.InputsWait = append(status.InputsWait, item)
		}
	}
	return status, nil
}

func toItem(v *fastjson.Value) Item {
	return Item{
		Index: v.GetInt("Index"),
		Name:  string(v.GetStringBytes("Description")),
	}
}

// fetchItems posts the session to path and returns the JSON array elements.
// The returned values stay valid because each call uses its own parser.
func (c *Client) fetchItems(ctx context.Context, path string) ([]*fastjson.Value, error) {
	form := url.Values{}
	form.Set("sessionId", c.sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", path, err)
	}
	items, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("unexpected response from %s: %w", path, err)
	}
	return items, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
