// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the bot API endpoint.
	BaseURL string
	// Token authenticates the service to the transport.
	Token string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client is the HTTP transport client. It implements Sender and
// provides long-poll update delivery via Updates.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a transport client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("chat: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("chat: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("chat: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// wireControl is a control as serialized for the transport.
type wireControl struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

func encodeControls(controls []Control) ([]wireControl, error) {
	if len(controls) == 0 {
		return nil, nil
	}
	wire := make([]wireControl, len(controls))
	for i, control := range controls {
		data, err := EncodeControlData(control.Data)
		if err != nil {
			return nil, err
		}
		wire[i] = wireControl{Label: control.Label, Data: data}
	}
	return wire, nil
}

// SendText implements Sender.
func (c *Client) SendText(ctx context.Context, to UserID, text string, controls ...Control) error {
	wire, err := encodeControls(controls)
	if err != nil {
		return err
	}
	body := struct {
		To       UserID        `json:"to"`
		Text     string        `json:"text"`
		Controls []wireControl `json:"controls,omitempty"`
	}{To: to, Text: text, Controls: wire}

	if _, err := c.doRequest(ctx, http.MethodPost, "/sendText", body, nil); err != nil {
		return fmt.Errorf("chat: send text to %s: %w", to, err)
	}
	return nil
}

// SendPhoto implements Sender.
func (c *Client) SendPhoto(ctx context.Context, to UserID, photo MediaRef, caption string, controls ...Control) error {
	wire, err := encodeControls(controls)
	if err != nil {
		return err
	}
	body := struct {
		To       UserID        `json:"to"`
		Photo    MediaRef      `json:"photo"`
		Caption  string        `json:"caption,omitempty"`
		Controls []wireControl `json:"controls,omitempty"`
	}{To: to, Photo: photo, Caption: caption, Controls: wire}

	if _, err := c.doRequest(ctx, http.MethodPost, "/sendPhoto", body, nil); err != nil {
		return fmt.Errorf("chat: send photo to %s: %w", to, err)
	}
	return nil
}

// SendDocument implements Sender. Content travels base64-encoded in
// the JSON body; exports at the target scale are a few hundred KB at
// most, well within a single request.
func (c *Client) SendDocument(ctx context.Context, to UserID, filename string, content []byte, caption string) error {
	body := struct {
		To       UserID `json:"to"`
		Filename string `json:"filename"`
		Content  []byte `json:"content"`
		Caption  string `json:"caption,omitempty"`
	}{To: to, Filename: filename, Content: content, Caption: caption}

	if _, err := c.doRequest(ctx, http.MethodPost, "/sendDocument", body, nil); err != nil {
		return fmt.Errorf("chat: send document to %s: %w", to, err)
	}
	return nil
}

// wireUpdate is an inbound update as serialized by the transport.
type wireUpdate struct {
	ID          int64  `json:"id"`
	From        UserID `json:"from"`
	Kind        string `json:"kind"`
	Text        string `json:"text,omitempty"`
	Photo       string `json:"photo,omitempty"`
	ControlData string `json:"control_data,omitempty"`
}

// Updates long-polls the transport for inbound events. Offset is the
// highest previously seen update ID + 1 (zero on first call); the
// server holds the request up to timeout before returning an empty
// batch. Updates with payloads this client cannot decode are logged
// and skipped rather than wedging the poll loop.
func (c *Client) Updates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	query.Set("timeout", strconv.Itoa(int(timeout.Seconds())))

	responseBody, err := c.doRequest(ctx, http.MethodGet, "/updates", nil, query)
	if err != nil {
		return nil, fmt.Errorf("chat: fetching updates: %w", err)
	}

	var response struct {
		Updates []wireUpdate `json:"updates"`
	}
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("chat: parsing updates response: %w", err)
	}

	updates := make([]Update, 0, len(response.Updates))
	for _, wire := range response.Updates {
		event, err := c.eventFromWire(wire)
		if err != nil {
			c.logger.Warn("skipping undecodable update",
				"update_id", wire.ID,
				"from", wire.From,
				"error", err,
			)
			continue
		}
		updates = append(updates, Update{ID: wire.ID, Event: event})
	}
	return updates, nil
}

func (c *Client) eventFromWire(wire wireUpdate) (Event, error) {
	event := Event{User: wire.From}
	switch EventKind(wire.Kind) {
	case EventText:
		event.Kind = EventText
		event.Text = wire.Text
	case EventPhoto:
		event.Kind = EventPhoto
		event.Photo = MediaRef(wire.Photo)
	case EventButton:
		data, err := DecodeControlData(wire.ControlData)
		if err != nil {
			return Event{}, err
		}
		event.Kind = EventButton
		event.Control = &data
	default:
		return Event{}, fmt.Errorf("chat: unknown event kind %q", wire.Kind)
	}
	return event, nil
}

// maxResponseBytes caps response reads. Update batches and send
// acknowledgments are small; anything larger is a misbehaving server.
const maxResponseBytes = 10 << 20

func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if query != nil {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("chat: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("chat: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bearer "+c.token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("chat: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("chat: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All transport error responses use the same JSON shape.
	var serverErr ServerError
	if jsonErr := json.Unmarshal(responseBody, &serverErr); jsonErr != nil || serverErr.Code == "" {
		// Non-JSON error body. Fail loud with the raw body.
		return nil, fmt.Errorf("chat: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	serverErr.StatusCode = response.StatusCode

	return responseBody, &serverErr
}
