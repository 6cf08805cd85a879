// Package client 是聊天服务的 HTTP 与 websocket 客户端，供命令行工具使用。
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/WBHankins93/messaging-app/internal/service"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

const closeWait = time.Second

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type (
	TokenPair    = service.TokenPair
	HistoryEntry = service.HistoryEntry
)

// Config 描述客户端连接参数。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http    *resty.Client
	baseURL string

	mu    sync.RWMutex
	token string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		http:    resty.New().SetBaseURL(base).SetTimeout(cfg.Timeout),
		baseURL: base,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Signup(ctx context.Context, username, password string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		Post("/signup")
	if err != nil {
		return fmt.Errorf("signup request: %w", err)
	}
	return mapHTTPError(resp)
}

// Login 登录成功后记住 access token。
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	var pair TokenPair
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"username": username, "password": password}).
		SetResult(&pair).
		Post("/token")
	if err != nil {
		return TokenPair{}, fmt.Errorf("login request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return TokenPair{}, err
	}
	c.SetToken(pair.AccessToken)
	return pair, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&pair).
		Post("/token/refresh")
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return TokenPair{}, err
	}
	c.SetToken(pair.AccessToken)
	return pair, nil
}

func (c *Client) Users(ctx context.Context) ([]string, error) {
	var names []string
	resp, err := c.authedRequest(ctx).SetResult(&names).Get("/users")
	if err != nil {
		return nil, fmt.Errorf("users request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) History(ctx context.Context, roomID string) ([]HistoryEntry, error) {
	var out struct {
		Messages []HistoryEntry `json:"messages"`
	}
	req := c.authedRequest(ctx).SetResult(&out)
	if roomID != "" {
		req.SetQueryParam("room_id", roomID)
	}
	resp, err := req.Get("/chat/history")
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Chat 连接房间：in 中的每一行作为一条消息发送，收到的广播逐行写入 out。
// in 读完或 ctx 取消时正常关闭连接。
func (c *Client) Chat(ctx context.Context, roomID string, in io.Reader, out io.Writer) error {
	u, err := c.relayURL(roomID)
	if err != nil {
		return err
	}
	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	// 返回前等待读 goroutine 退出，保证之后不再写 out。
	readErr := make(chan error, 1)
	readDone := make(chan struct{})
	defer func() {
		_ = conn.Close()
		<-readDone
	}()
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			fmt.Fprintln(out, string(data))
		}
	}()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return closeRelay(conn, readErr)
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		case line, ok := <-lines:
			if !ok {
				return closeRelay(conn, readErr)
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return fmt.Errorf("relay write: %w", err)
			}
		}
	}
}

func (c *Client) relayURL(roomID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(roomID)
	return u.String(), nil
}

func (c *Client) authedRequest(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// closeRelay 发送关闭帧并等待服务端回应，超时后直接返回。
func closeRelay(conn *websocket.Conn, readErr <-chan error) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close relay: %w", err)
	}
	select {
	case <-readErr:
	case <-time.After(closeWait):
	}
	return nil
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode(), body)
}
