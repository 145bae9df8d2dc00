// Package market samples the traded asset price and an optional index price
// from configured feeds.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"base-autobot/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidPrice is returned when a feed yields a missing, non-numeric,
// non-finite or non-positive value.
var ErrInvalidPrice = errors.New("invalid price")

const binancePrefix = "binance:"

// Sampler fetches PricePoints. Supported feed URLs are http(s)://, ws(s)://
// (one message is read per fetch) and binance:<SYMBOL>.
type Sampler struct {
	cfg     *models.Config
	client  *http.Client
	dialer  *websocket.Dialer
	binance *binance.Client
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewSampler creates a sampler for the feeds in cfg.
func NewSampler(cfg *models.Config, logger *zap.Logger) *Sampler {
	timeout := time.Duration(cfg.FeedTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sampler{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		binance: binance.NewClient("", ""), // public ticker endpoints need no key
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source used for FetchedAt.
func (s *Sampler) WithClock(now func() time.Time) *Sampler {
	s.now = now
	return s
}

// Fetch samples the price and, when configured, the index price in parallel.
func (s *Sampler) Fetch(ctx context.Context) (models.PricePoint, error) {
	var price, index float64
	withIndex := s.cfg.IndexFeedURL != "" && s.cfg.IndexPriceField != ""

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		price, err = s.FetchPrice(gctx, s.cfg.PriceFeedURL, s.cfg.PriceField)
		return err
	})
	if withIndex {
		g.Go(func() error {
			var err error
			index, err = s.FetchPrice(gctx, s.cfg.IndexFeedURL, s.cfg.IndexPriceField)
			if err != nil {
				return fmt.Errorf("index feed: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.PricePoint{}, err
	}

	point := models.PricePoint{Price: price, FetchedAt: s.now()}
	if withIndex {
		point.IndexPrice = &index
	}
	s.logger.Debug("price sampled", zap.Float64("price", price), zap.Bool("index", withIndex))
	return point, nil
}

// FetchPrice reads one value from feedURL and validates it.
func (s *Sampler) FetchPrice(ctx context.Context, feedURL, field string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		raw any
		err error
	)
	switch {
	case strings.HasPrefix(feedURL, binancePrefix):
		raw, err = s.fetchBinance(ctx, strings.TrimPrefix(feedURL, binancePrefix))
		field = ""
	case strings.HasPrefix(feedURL, "ws://"), strings.HasPrefix(feedURL, "wss://"):
		raw, err = s.fetchWebsocket(ctx, feedURL)
	default:
		raw, err = s.fetchHTTP(ctx, feedURL)
	}
	if err != nil {
		return 0, err
	}

	value, ok := ReadPath(raw, field)
	if !ok {
		return 0, fmt.Errorf("%w from feed at field '%s'", ErrInvalidPrice, field)
	}
	price, ok := AsNumber(value)
	if !ok || price <= 0 {
		return 0, fmt.Errorf("%w from feed at field '%s'", ErrInvalidPrice, field)
	}
	return price, nil
}

func (s *Sampler) fetchHTTP(ctx context.Context, feedURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("price feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("price feed error (%d)", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("price feed read: %w", err)
	}
	return decodeDocument(body)
}

func (s *Sampler) fetchWebsocket(ctx context.Context, feedURL string) (any, error) {
	conn, _, err := s.dialer.DialContext(ctx, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("price feed dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("price feed read: %w", err)
	}
	return decodeDocument(msg)
}

func (s *Sampler) fetchBinance(ctx context.Context, symbol string) (any, error) {
	prices, err := s.binance.NewListPricesService().Symbol(strings.ToUpper(symbol)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	for _, p := range prices {
		if strings.EqualFold(p.Symbol, symbol) {
			return p.Price, nil
		}
	}
	return nil, fmt.Errorf("binance ticker %s: symbol not returned", symbol)
}

func decodeDocument(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("price feed decode: %w", err)
	}
	return doc, nil
}
