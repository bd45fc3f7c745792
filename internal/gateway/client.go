package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("gateway unavailable")
)

// APIError is a non-2xx answer from the platform API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
	err    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s %s: status=%d %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return e.err }

// Channel types that accept text messages.
const (
	channelTypeGuildText         = 0
	channelTypeGuildAnnouncement = 5
)

type Options struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	FailThreshold int
	OpenFor       time.Duration
}

// Client talks to the chat platform REST API with a bot token.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	br      *Breaker
	log     *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		client:  &http.Client{Timeout: opts.Timeout},
		br:      NewBreaker(opts.FailThreshold, opts.OpenFor),
		log:     log.Named("gateway"),
	}
}

type userResp struct {
	ID string `json:"id"`
}

type channelResp struct {
	ID      string `json:"id"`
	Type    int    `json:"type"`
	GuildID string `json:"guild_id"`
}

type messageReq struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

func newMessage(content string) messageReq {
	return messageReq{Content: content, AllowedMentions: allowedMentions{Parse: []string{"users"}}}
}

func id(v uint64) string { return strconv.FormatUint(v, 10) }

// SendDirectMessage opens (or reuses) the DM channel with the user and posts content.
// Returns ErrNotFound when the user does not exist and ErrForbidden when DMs are closed.
func (c *Client) SendDirectMessage(ctx context.Context, userID uint64, content string) error {
	var u userResp
	if err := c.do(ctx, http.MethodGet, "/users/"+id(userID), nil, &u); err != nil {
		return err
	}

	var dm channelResp
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": id(userID)}, &dm); err != nil {
		return err
	}

	return c.do(ctx, http.MethodPost, "/channels/"+dm.ID+"/messages", newMessage(content), nil)
}

func (c *Client) SendChannelMessage(ctx context.Context, channelID uint64, content string) error {
	return c.do(ctx, http.MethodPost, "/channels/"+id(channelID)+"/messages", newMessage(content), nil)
}

// IsMember reports whether the user is still in the server.
func (c *Client) IsMember(ctx context.Context, serverID, userID uint64) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/guilds/"+id(serverID)+"/members/"+id(userID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsTextChannel reports whether channelID is a text channel of serverID.
// Returns ErrNotFound when the channel was deleted.
func (c *Client) IsTextChannel(ctx context.Context, serverID, channelID uint64) (bool, error) {
	var ch channelResp
	if err := c.do(ctx, http.MethodGet, "/channels/"+id(channelID), nil, &ch); err != nil {
		return false, err
	}
	if ch.GuildID != id(serverID) {
		return false, nil
	}
	return ch.Type == channelTypeGuildText || ch.Type == channelTypeGuildAnnouncement, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.br.Allow() {
		return fmt.Errorf("%w: %s %s", ErrUnavailable, method, path)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.br.OnFailure()
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 == 2 {
		c.br.OnSuccess()
		if out == nil {
			return nil
		}
		return json.NewDecoder(res.Body).Decode(out)
	}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	apiErr := &APIError{Method: method, Path: path, Status: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	switch {
	case res.StatusCode == http.StatusForbidden:
		apiErr.err = ErrForbidden
		c.br.OnSuccess()
	case res.StatusCode == http.StatusNotFound:
		apiErr.err = ErrNotFound
		c.br.OnSuccess()
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		c.br.OnFailure()
	default:
		c.br.OnSuccess()
	}

	c.log.Debug("api error", zap.String("method", method), zap.String("path", path), zap.Int("status", res.StatusCode))
	return apiErr
}
