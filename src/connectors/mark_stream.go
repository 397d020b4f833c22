package connectors

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const markStreamName = "!markPrice@arr@1s"

type markSample struct {
	price float64
	at    time.Time
}

// MarkStream maintains an in-memory cache of the latest mark price per symbol
// fed by the combined mark-price websocket stream. GetTicker consults it
// before falling back to REST; a sample older than staleAfter is ignored.
type MarkStream struct {
	wsURL      string
	staleAfter time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	marks map[string]markSample
}

func NewMarkStream(cfg Config) *MarkStream {
	return &MarkStream{
		wsURL:      cfg.FuturesWsURL + "/" + markStreamName,
		staleAfter: cfg.MarkStaleAfter,
		now:        time.Now,
		marks:      make(map[string]markSample),
	}
}

// Mark returns the cached mark price for a symbol when a fresh sample exists.
func (s *MarkStream) Mark(symbol string) (float64, bool) {
	s.mu.RLock()
	sample, ok := s.marks[symbol]
	s.mu.RUnlock()

	if !ok || s.now().Sub(sample.at) > s.staleAfter {
		return 0, false
	}
	return sample.price, true
}

func (s *MarkStream) put(symbol string, price float64, at time.Time) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	s.mu.Lock()
	s.marks[symbol] = markSample{price: price, at: at}
	s.mu.Unlock()
}

type markPriceEvent struct {
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// Run dials the stream and keeps the cache updated until the context is
// cancelled, redialing after a pause on any read or dial failure. The cache
// degrades gracefully: while the stream is down, stale entries simply stop
// answering and callers fall back to REST.
func (s *MarkStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("mark stream disconnected, redialing")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *MarkStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.WithField("url", s.wsURL).Info("mark stream connected")

	// The watcher must not outlive this connection: unblock it on return so
	// redial cycles do not accumulate goroutines.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var events []markPriceEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			continue
		}

		at := s.now()
		for _, ev := range events {
			price, err := strconv.ParseFloat(ev.MarkPrice, 64)
			if err != nil {
				continue
			}
			s.put(ev.Symbol, price, at)
		}
	}
}
