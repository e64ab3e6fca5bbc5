package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamFeed consumes a market data WebSocket stream and serves the most
// recent trade price per ticker. It reconnects on its own; the trading
// loop only ever reads the cache through Prices.
type StreamFeed struct {
	mu sync.RWMutex

	log       zerolog.Logger
	url       string
	conn      *websocket.Conn
	isRunning bool
	stopChan  chan struct{}

	quotes     map[string]Quote
	staleAfter time.Duration
	reconnects int
}

type tradeMessage struct {
	Type   string  `json:"type"`
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"`
}

// NewStreamFeed creates a stream feed for the given WebSocket URL. Quotes
// older than staleAfter are withheld from Prices so the caller falls back
// to its last-known-good book rather than trading on dead data.
func NewStreamFeed(url string, staleAfter time.Duration, log zerolog.Logger) *StreamFeed {
	return &StreamFeed{
		log:        log,
		url:        url,
		staleAfter: staleAfter,
		quotes:     make(map[string]Quote),
		stopChan:   make(chan struct{}),
	}
}

// Start opens the connection and begins streaming in the background.
func (f *StreamFeed) Start() {
	f.mu.Lock()
	if f.isRunning {
		f.mu.Unlock()
		return
	}
	f.isRunning = true
	f.mu.Unlock()

	go f.connect()
}

// Stop closes the stream.
func (f *StreamFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isRunning {
		return
	}
	f.isRunning = false
	close(f.stopChan)

	if f.conn != nil {
		f.conn.Close()
	}
	f.log.Info().Msg("price stream stopped")
}

// Prices returns the cached quote for each requested ticker, skipping
// tickers with no fresh quote. An empty result signals a feed outage.
func (f *StreamFeed) Prices(_ context.Context, tickers []string) (map[string]Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := time.Now()
	out := make(map[string]Quote, len(tickers))
	for _, t := range tickers {
		q, ok := f.quotes[t]
		if !ok {
			continue
		}
		if f.staleAfter > 0 && now.Sub(q.At) > f.staleAfter {
			continue
		}
		out[t] = q
	}
	return out, nil
}

func (f *StreamFeed) connect() {
	for {
		f.mu.RLock()
		running := f.isRunning
		f.mu.RUnlock()
		if !running {
			return
		}

		f.log.Info().Str("url", f.url).Msg("connecting to price stream")

		conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
		if err != nil {
			f.mu.Lock()
			f.reconnects++
			f.mu.Unlock()
			f.log.Warn().Err(err).Msg("price stream connect failed, retrying in 5s")
			select {
			case <-f.stopChan:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		f.log.Info().Msg("price stream connected")

		f.readLoop(conn)

		f.mu.RLock()
		running = f.isRunning
		f.mu.RUnlock()
		if !running {
			return
		}

		f.log.Warn().Msg("price stream lost, reconnecting in 3s")
		select {
		case <-f.stopChan:
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (f *StreamFeed) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Info().Msg("price stream closed normally")
			} else {
				f.log.Warn().Err(err).Msg("price stream read error")
			}
			return
		}
		f.handleMessage(message)
	}
}

func (f *StreamFeed) handleMessage(message []byte) {
	var msg tradeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		f.log.Warn().Err(err).Msg("unparseable stream message")
		return
	}
	if msg.Type != "trade" || msg.Ticker == "" || msg.Price <= 0 {
		return
	}

	at := time.Now()
	if msg.Time > 0 {
		at = time.UnixMilli(msg.Time)
	}

	f.mu.Lock()
	f.quotes[msg.Ticker] = Quote{Ticker: msg.Ticker, Price: msg.Price, At: at}
	f.mu.Unlock()
}

// Stats reports connection health for the operator API.
func (f *StreamFeed) Stats() map[string]interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return map[string]interface{}{
		"running":    f.isRunning,
		"reconnects": f.reconnects,
		"tickers":    len(f.quotes),
	}
}
