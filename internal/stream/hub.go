// Package stream pushes quote updates and trade results to websocket
// clients.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/middleware"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/monitoring"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/validator"
)

// Message types sent to clients.
const (
	TypeQuote = "quote"
	TypeTrade = "trade"
	TypeAck   = "ack"
	TypeError = "error"
	TypePong  = "pong"
)

const (
	DefaultPushInterval = 5 * time.Second
	DefaultMaxSymbols   = 100
	DefaultSendBuffer   = 64
)

// Message is the envelope of every frame sent to a client.
type Message struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// QuoteSource supplies display quotes. Stale quotes are pushed with their
// Stale flag set.
type QuoteSource interface {
	GetForDisplay(ctx context.Context, symbols []string) map[string]models.Quote
}

type Config struct {
	PushInterval   time.Duration
	MaxSymbols     int
	SendBuffer     int
	AllowedOrigins []string

	Clock   func() time.Time
	Logger  *logger.Logger
	Metrics *monitoring.Metrics
}

// Hub tracks stream clients by owner and by subscribed symbol. Quotes for
// subscribed symbols are pushed every PushInterval when they change; trade
// results go to every connection of the trading owner.
type Hub struct {
	quotes       QuoteSource
	pushInterval time.Duration
	maxSymbols   int
	sendBuffer   int
	upgrader     websocket.Upgrader

	now     func() time.Time
	log     *logger.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	clients map[*Client]struct{}
	owners  map[uuid.UUID]map[*Client]struct{}
	topics  map[string]map[*Client]struct{}

	// only touched by Run
	lastPushed map[string]models.Quote
}

func NewHub(quotes QuoteSource, cfg Config) *Hub {
	h := &Hub{
		quotes:       quotes,
		pushInterval: cfg.PushInterval,
		maxSymbols:   cfg.MaxSymbols,
		sendBuffer:   cfg.SendBuffer,
		now:          cfg.Clock,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		clients:      make(map[*Client]struct{}),
		owners:       make(map[uuid.UUID]map[*Client]struct{}),
		topics:       make(map[string]map[*Client]struct{}),
		lastPushed:   make(map[string]models.Quote),
	}
	if h.pushInterval <= 0 {
		h.pushInterval = DefaultPushInterval
	}
	if h.maxSymbols <= 0 {
		h.maxSymbols = DefaultMaxSymbols
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = DefaultSendBuffer
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = logger.NewNop()
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker admits requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades an authenticated request to a stream connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerID(r.Context())
	if !ok {
		middleware.WriteError(w, r, apperrors.NewAuthenticationError("authentication required", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.log.WithContext(r.Context()).Debugw("Stream upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, owner, h.log.WithFields(map[string]interface{}{
		"owner_id":   owner.String(),
		"request_id": middleware.RequestID(r.Context()),
	}))
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// Run pushes changed quotes to subscribers until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-ticker.C:
			h.pushQuotes(ctx)
		}
	}
}

// TradeExecuted sends a committed trade to its owner's connections.
func (h *Hub) TradeExecuted(ctx context.Context, result *models.TradeResult) {
	if result == nil || result.Portfolio == nil {
		return
	}
	h.SendToOwner(result.Portfolio.OwnerID, Message{Type: TypeTrade, Data: result})
}

// SendToOwner delivers msg to every connection of owner.
func (h *Hub) SendToOwner(owner uuid.UUID, msg Message) {
	payload, err := h.encode(msg)
	if err != nil {
		h.log.Errorw("Stream message encode failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := members(h.owners[owner])
	h.mu.RUnlock()

	h.deliver(targets, msg.Type, payload)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) pushQuotes(ctx context.Context) {
	h.mu.RLock()
	symbols := make([]string, 0, len(h.topics))
	for s := range h.topics {
		symbols = append(symbols, s)
	}
	h.mu.RUnlock()

	if len(symbols) == 0 {
		h.lastPushed = make(map[string]models.Quote)
		return
	}
	sort.Strings(symbols)

	quotes := h.quotes.GetForDisplay(ctx, symbols)
	pushed := make(map[string]models.Quote, len(symbols))
	for _, s := range symbols {
		q, ok := quotes[s]
		if !ok {
			continue
		}
		pushed[s] = q
		if prev, seen := h.lastPushed[s]; seen && sameQuote(prev, q) {
			continue
		}

		payload, err := h.encode(Message{Type: TypeQuote, Data: q})
		if err != nil {
			h.log.Errorw("Stream message encode failed", "type", TypeQuote, "error", err)
			continue
		}

		h.mu.RLock()
		targets := members(h.topics[s])
		h.mu.RUnlock()
		h.deliver(targets, TypeQuote, payload)
	}
	h.lastPushed = pushed
}

func sameQuote(a, b models.Quote) bool {
	return a.Price.Equal(b.Price) && a.FetchedAt.Equal(b.FetchedAt) && a.Stale == b.Stale
}

// sendQuotes delivers the current display quotes for symbols to c alone.
func (h *Hub) sendQuotes(ctx context.Context, c *Client, symbols []string) {
	quotes := h.quotes.GetForDisplay(ctx, symbols)
	for _, s := range symbols {
		if q, ok := quotes[s]; ok {
			h.reply(c, Message{Type: TypeQuote, Data: q})
		}
	}
}

func (h *Hub) reply(c *Client, msg Message) {
	payload, err := h.encode(msg)
	if err != nil {
		h.log.Errorw("Stream message encode failed", "type", msg.Type, "error", err)
		return
	}
	h.deliver([]*Client{c}, msg.Type, payload)
}

func (h *Hub) encode(msg Message) ([]byte, error) {
	msg.Timestamp = h.now().UTC()
	return json.Marshal(msg)
}

// deliver queues payload for each target. A client whose buffer is full is
// dropped; closing its send channel makes the write pump hang up.
func (h *Hub) deliver(targets []*Client, msgType string, payload []byte) {
	var lagging []*Client

	h.mu.RLock()
	for _, c := range targets {
		if _, ok := h.clients[c]; !ok {
			continue
		}
		select {
		case c.send <- payload:
		default:
			lagging = append(lagging, c)
		}
	}
	h.mu.RUnlock()

	if len(lagging) == 0 {
		return
	}

	h.mu.Lock()
	for _, c := range lagging {
		if h.removeLocked(c) {
			h.metrics.ObserveStreamDrop(msgType)
			c.log.Warnw("Stream client dropped for falling behind", "type", msgType)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetStreamClients(n)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	owned, ok := h.owners[c.owner]
	if !ok {
		owned = make(map[*Client]struct{})
		h.owners[c.owner] = owned
	}
	owned[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(n)
	c.log.Infow("Stream client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	n := len(h.clients)
	h.mu.Unlock()

	if removed {
		h.metrics.SetStreamClients(n)
		c.log.Infow("Stream client disconnected")
	}
}

// removeLocked forgets c and closes its send channel. It reports false if
// c was already gone.
func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)

	if owned := h.owners[c.owner]; owned != nil {
		delete(owned, c)
		if len(owned) == 0 {
			delete(h.owners, c.owner)
		}
	}
	for s := range c.topics {
		h.dropTopicLocked(c, s)
	}

	close(c.send)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.metrics.SetStreamClients(0)
}

// subscribe adds symbols to c's subscriptions and returns the ones that were
// new. Either every symbol is accepted or none is.
func (h *Hub) subscribe(c *Client, symbols []string) ([]string, error) {
	normalized, err := normalizeSymbols(symbols)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return nil, fmt.Errorf("connection closed")
	}

	var added []string
	for _, s := range normalized {
		if _, ok := c.topics[s]; !ok {
			added = append(added, s)
		}
	}
	if len(c.topics)+len(added) > h.maxSymbols {
		return nil, fmt.Errorf("at most %d symbols may be subscribed", h.maxSymbols)
	}

	for _, s := range added {
		c.topics[s] = struct{}{}
		subs, ok := h.topics[s]
		if !ok {
			subs = make(map[*Client]struct{})
			h.topics[s] = subs
		}
		subs[c] = struct{}{}
	}
	return added, nil
}

func (h *Hub) unsubscribe(c *Client, symbols []string) error {
	normalized, err := normalizeSymbols(symbols)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range normalized {
		h.dropTopicLocked(c, s)
	}
	return nil
}

func (h *Hub) dropTopicLocked(c *Client, symbol string) {
	delete(c.topics, symbol)
	if subs := h.topics[symbol]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, symbol)
		}
	}
}

// subscriptions returns c's symbols in order.
func (h *Hub) subscriptions(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(c.topics))
	for s := range c.topics {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalizeSymbols(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols are required")
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = validator.NormalizeSymbol(s)
		if !validator.IsValidSymbol(s) {
			return nil, fmt.Errorf("invalid symbol %q", s)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func members(set map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
