package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nkassim/perpmm/internal/domain"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 30 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	reconnectDelay   = 2 * time.Second
	maxReconnectWait = 60 * time.Second
)

// Client is the REST + WebSocket venue implementation used in live mode.
// It authenticates with a base58-encoded private key supplied out of band
// (PRIVATE_KEY_BASE58); actual request signing is the real venue SDK's
// concern and is not reproduced here — this client sends the key as a
// bearer credential and otherwise speaks the contract in sdk.go.
type Client struct {
	httpClient *http.Client
	restURL    string
	wsURL      string
	authToken  string
	logger     *slog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	closed   bool
	handler  OrderbookHandler
	subbed   map[int]bool
	accountID string
}

// NewClient creates a venue Client. restURL and wsURL come from
// config.RuntimeEnv (RPC_ENDPOINT / WEB_SERVER_URL); authToken is the
// caller's base58 private key.
func NewClient(restURL, wsURL, authToken string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		restURL:    restURL,
		wsURL:      wsURL,
		authToken:  authToken,
		logger:     logger.With(slog.String("component", "venue")),
		subbed:     make(map[int]bool),
	}
}

func (c *Client) GetAllMarkets(ctx context.Context) ([]domain.Market, error) {
	var markets []domain.Market
	if err := c.getJSON(ctx, "/markets", &markets); err != nil {
		return nil, fmt.Errorf("venue: get all markets: %w", err)
	}
	return markets, nil
}

func (c *Client) SubscribeOrderbook(ctx context.Context, marketID int) error {
	if err := c.ensureConn(ctx); err != nil {
		return fmt.Errorf("venue: subscribe: %w", err)
	}
	c.mu.Lock()
	c.subbed[marketID] = true
	c.mu.Unlock()
	return c.sendSubscribe(marketID)
}

func (c *Client) UnsubscribeOrderbook(ctx context.Context, marketID int) error {
	c.mu.Lock()
	delete(c.subbed, marketID)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.send(map[string]any{"cmd": "unsubscribe", "market_id": marketID})
}

func (c *Client) OnOrderbookUpdate(handler OrderbookHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Client) User() UserAPI { return c }

func (c *Client) UpdateAccountID(ctx context.Context) error {
	var resp struct {
		AccountID string `json:"account_id"`
	}
	if err := c.getJSON(ctx, "/account", &resp); err != nil {
		return fmt.Errorf("venue: update account id: %w", err)
	}
	c.mu.Lock()
	c.accountID = resp.AccountID
	c.mu.Unlock()
	return nil
}

func (c *Client) FetchInfo(ctx context.Context) (AccountInfo, error) {
	var resp struct {
		Balance   domain.Balance              `json:"balance"`
		Positions map[int]domain.Position     `json:"positions"`
		Orders    map[string]domain.RestingOrder `json:"orders"`
	}
	if err := c.getJSON(ctx, "/account/info", &resp); err != nil {
		return AccountInfo{}, fmt.Errorf("venue: fetch info: %w", err)
	}
	return AccountInfo{Balance: resp.Balance, Positions: resp.Positions, Orders: resp.Orders}, nil
}

func (c *Client) GetLeverage(ctx context.Context, marketID int) (float64, error) {
	var resp struct {
		Leverage float64 `json:"leverage"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/account/leverage?market_id=%d", marketID), &resp); err != nil {
		return 0, fmt.Errorf("venue: get leverage: %w", err)
	}
	return resp.Leverage, nil
}

func (c *Client) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := c.postJSON(ctx, "/orders", intent, &resp); err != nil {
		return "", fmt.Errorf("venue: place order: %w", err)
	}
	return resp.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.postJSON(ctx, "/orders/"+orderID+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("venue: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) CancelAllOrders(ctx context.Context, marketID *int) error {
	body := map[string]any{}
	if marketID != nil {
		body["market_id"] = *marketID
	}
	if err := c.postJSON(ctx, "/orders/cancel_all", body, nil); err != nil {
		return fmt.Errorf("venue: cancel all orders: %w", err)
	}
	return nil
}

var _ SDK = (*Client)(nil)
var _ UserAPI = (*Client)(nil)

// --- HTTP helpers, grounded on the typed-client/http.Client{Timeout} shape ---

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- WebSocket orderbook feed, grounded on the kalshi/polymarket WS client shape ---

func (c *Client) ensureConn(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		return nil
	}
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("venue: ws connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("ws read failed, reconnecting", slog.String("error", err.Error()))
			c.reconnect()
			return
		}
		var book domain.OrderbookSnapshot
		if err := json.Unmarshal(message, &book); err != nil {
			c.logger.Warn("ws decode failed", slog.String("error", err.Error()))
			continue
		}
		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h != nil {
			h(book)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	subs := make([]int, 0, len(c.subbed))
	for id := range c.subbed {
		subs = append(subs, id)
	}
	c.mu.Unlock()

	delay := reconnectDelay
	for {
		time.Sleep(delay)
		if err := c.connect(context.Background()); err == nil {
			for _, id := range subs {
				_ = c.sendSubscribe(id)
			}
			return
		}
		delay *= 2
		if delay > maxReconnectWait {
			delay = maxReconnectWait
		}
	}
}

func (c *Client) sendSubscribe(marketID int) error {
	return c.send(map[string]any{"cmd": "subscribe", "market_id": marketID})
}

func (c *Client) send(v any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("venue: not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close shuts down the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return c.conn.Close()
	}
	return nil
}

