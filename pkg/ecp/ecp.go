package ecp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the External Control Protocol port of the device.
const DefaultPort = 8060

// ECP errors.
var (
	ErrChannelIDMissing     = errors.New("channel id required and not supplied")
	ErrLaunchNotVerified    = errors.New("channel launch could not be verified")
	ErrInvalidActiveApp     = errors.New("invalid active-app response")
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
)

// Config configures a Client.
type Config struct {
	// Host is the device IP address or host name. Required.
	Host string

	// Port defaults to DefaultPort.
	Port int

	// ChannelID is launched when SendLaunchChannel is given none.
	ChannelID string

	// KeyPressDelay is waited after each key press unless a call sets its
	// own wait.
	KeyPressDelay time.Duration

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client

	// Logger receives debug output. Optional.
	Logger *slog.Logger
}

// Client sends remote control input to a device.
type Client struct {
	config  Config
	baseURL *url.URL
	http    *http.Client
}

// New creates a Client for the device in config.
func New(config Config) (*Client, error) {
	if config.Host == "" {
		return nil, errors.New("host is required")
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		config: config,
		baseURL: &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
			Path:   "/",
		},
		http: httpClient,
	}, nil
}

// SendKeyPress presses key once. A zero wait uses the configured
// KeyPressDelay.
func (c *Client) SendKeyPress(ctx context.Context, key Key, wait time.Duration) error {
	if err := c.post(ctx, "keypress/"+url.PathEscape(string(key)), nil); err != nil {
		return fmt.Errorf("keypress %s: %w", key, err)
	}
	if wait == 0 {
		wait = c.config.KeyPressDelay
	}
	return sleep(ctx, wait)
}

// SendKeyPressSequence presses each key in order.
func (c *Client) SendKeyPressSequence(ctx context.Context, keys []Key, wait time.Duration) error {
	for _, key := range keys {
		if err := c.SendKeyPress(ctx, key, wait); err != nil {
			return err
		}
	}
	return nil
}

// SendText types text one character at a time.
func (c *Client) SendText(ctx context.Context, text string, wait time.Duration) error {
	for _, r := range text {
		if err := c.SendKeyPress(ctx, Literal(r), wait); err != nil {
			return err
		}
	}
	return nil
}

// LaunchOptions configures SendLaunchChannel.
type LaunchOptions struct {
	// ChannelID defaults to the configured ChannelID.
	ChannelID string

	// Params are passed to the channel as launch parameters.
	Params map[string]string

	// SkipVerify skips checking the active app after launching.
	SkipVerify bool
}

// SendLaunchChannel launches a channel and, unless told otherwise, verifies
// that it became the active app.
func (c *Client) SendLaunchChannel(ctx context.Context, opts LaunchOptions) error {
	channelID := opts.ChannelID
	if channelID == "" {
		channelID = c.config.ChannelID
	}
	if channelID == "" {
		return ErrChannelIDMissing
	}

	query := url.Values{}
	for k, v := range opts.Params {
		query.Set(k, v)
	}
	if err := c.post(ctx, "launch/"+url.PathEscape(channelID), query); err != nil {
		return fmt.Errorf("launch %s: %w", channelID, err)
	}
	if opts.SkipVerify {
		return nil
	}

	active, err := c.GetActiveApp(ctx)
	if err != nil || active.App == nil || active.App.ID != channelID {
		return fmt.Errorf("%w: %q", ErrLaunchNotVerified, channelID)
	}
	return nil
}

// App describes an application entry of the active-app query.
type App struct {
	ID      string `xml:"id,attr"`
	Type    string `xml:"type,attr"`
	Version string `xml:"version,attr"`
	Title   string `xml:",chardata"`
}

// ActiveApp is the parsed active-app query response.
type ActiveApp struct {
	XMLName     xml.Name `xml:"active-app"`
	App         *App     `xml:"app"`
	Screensaver *App     `xml:"screensaver"`
}

// GetActiveApp returns the application currently in the foreground.
func (c *Client) GetActiveApp(ctx context.Context) (*ActiveApp, error) {
	body, err := c.do(ctx, http.MethodGet, "query/active-app", nil)
	if err != nil {
		return nil, fmt.Errorf("query active-app: %w", err)
	}

	var active ActiveApp
	if err := xml.Unmarshal(body, &active); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidActiveApp, err)
	}
	if active.App == nil && active.Screensaver == nil {
		return nil, ErrInvalidActiveApp
	}
	if active.App != nil {
		active.App.Title = strings.TrimSpace(active.App.Title)
	}
	if active.Screensaver != nil {
		active.Screensaver.Title = strings.TrimSpace(active.Screensaver.Title)
	}
	return &active, nil
}

func (c *Client) post(ctx context.Context, path string, query url.Values) error {
	_, err := c.do(ctx, http.MethodPost, path, query)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.config.Logger != nil {
		c.config.Logger.Debug("ecp request", "method", method, "url", u.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}
	return body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
