package client

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"chassis-cli/pkg/config"
	"chassis-cli/pkg/sol"
)

// Client talks to the chassis manager REST service. Every console operation
// is a GET on the operation name with its arguments in the query string,
// answered with a JSON body carrying the completion code.
type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	httpClient *http.Client
}

var (
	_ sol.BladeService = (*Client)(nil)
	_ sol.PortService  = (*Client)(nil)
)

// consoleResponse is the body of every console operation.
type consoleResponse struct {
	CompletionCode    string `json:"completionCode"`
	StatusDescription string `json:"statusDescription"`
	SessionToken      string `json:"serialSessionToken,omitempty"`
	Data              []byte `json:"data,omitempty"`
}

// New returns a client for the manager section of cfg.
//
// Returns an error if the endpoint is not an absolute http or https URL.
func New(cfg config.ManagerConfig) (*Client, error) {
	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid manager endpoint %q: %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid manager endpoint %q: scheme must be http or https", cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL:  u,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// call issues operation op and decodes the console response. HTTP 401 and
// 403 are reported as CodeUnauthorized rather than an error, since the
// manager did answer.
func (c *Client) call(ctx context.Context, op string, params url.Values) (sol.Response, error) {
	u := c.baseURL.JoinPath(op)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return sol.Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sol.Response{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return sol.Response{Code: sol.CodeUnauthorized, Status: resp.Status}, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return sol.Response{}, fmt.Errorf("%s: unexpected status %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
	}

	var body consoleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return sol.Response{}, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	out := sol.Response{
		Code:   sol.ParseCompletionCode(body.CompletionCode),
		Status: body.StatusDescription,
		Token:  body.SessionToken,
		Data:   body.Data,
	}
	log.Trace().Str("op", op).Str("code", string(out.Code)).Int("bytes", len(out.Data)).Msg("chassis manager call")
	return out, nil
}

func seconds(d time.Duration) string {
	return strconv.Itoa(int(d / time.Second))
}

func (c *Client) StartBladeSerialSession(ctx context.Context, bladeID int, timeout time.Duration) (sol.Response, error) {
	return c.call(ctx, "StartBladeSerialSession", url.Values{
		"bladeId":              {strconv.Itoa(bladeID)},
		"sessionTimeoutInSecs": {seconds(timeout)},
	})
}

func (c *Client) StopBladeSerialSession(ctx context.Context, bladeID int, token string, force bool) (sol.Response, error) {
	return c.call(ctx, "StopBladeSerialSession", url.Values{
		"bladeId":      {strconv.Itoa(bladeID)},
		"sessionToken": {token},
		"forceKill":    {strconv.FormatBool(force)},
	})
}

func (c *Client) SendBladeSerialData(ctx context.Context, bladeID int, token string, data []byte) (sol.Response, error) {
	return c.call(ctx, "SendBladeSerialData", url.Values{
		"bladeId":      {strconv.Itoa(bladeID)},
		"sessionToken": {token},
		"data":         {base64.StdEncoding.EncodeToString(data)},
	})
}

func (c *Client) ReceiveBladeSerialData(ctx context.Context, bladeID int, token string) (sol.Response, error) {
	return c.call(ctx, "ReceiveBladeSerialData", url.Values{
		"bladeId":      {strconv.Itoa(bladeID)},
		"sessionToken": {token},
	})
}

func (c *Client) StartSerialPortConsole(ctx context.Context, portID int, timeout time.Duration, baudRate int) (sol.Response, error) {
	return c.call(ctx, "StartSerialPortConsole", url.Values{
		"portId":               {strconv.Itoa(portID)},
		"sessionTimeoutInSecs": {seconds(timeout)},
		"baudrate":             {strconv.Itoa(baudRate)},
	})
}

func (c *Client) StopSerialPortConsole(ctx context.Context, portID int, token string, force bool) (sol.Response, error) {
	return c.call(ctx, "StopSerialPortConsole", url.Values{
		"portId":       {strconv.Itoa(portID)},
		"sessionToken": {token},
		"forceKill":    {strconv.FormatBool(force)},
	})
}

func (c *Client) SendSerialPortData(ctx context.Context, portID int, token string, data []byte) (sol.Response, error) {
	return c.call(ctx, "SendSerialPortData", url.Values{
		"portId":       {strconv.Itoa(portID)},
		"sessionToken": {token},
		"data":         {base64.StdEncoding.EncodeToString(data)},
	})
}

func (c *Client) ReceiveSerialPortData(ctx context.Context, portID int, token string) (sol.Response, error) {
	return c.call(ctx, "ReceiveSerialPortData", url.Values{
		"portId":       {strconv.Itoa(portID)},
		"sessionToken": {token},
	})
}
