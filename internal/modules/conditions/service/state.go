package service

import (
	"context"
	"sync"

	"signal_bot/internal/models"
)

// Source: какой луп владеет группой полей TradingConditions.
type Source int

const (
	SourcePairs Source = iota
	SourceSentiment
	SourcePrice
)

func (s Source) String() string {
	switch s {
	case SourcePairs:
		return "pairs"
	case SourceSentiment:
		return "sentiment"
	case SourcePrice:
		return "price"
	}
	return "unknown"
}

// SentimentUpdate: поля, которыми владеет FGI-луп.
type SentimentUpdate struct {
	Value     int
	Allows    bool
	Downtrend bool
	Drop      bool
}

// State: единственный экземпляр условий торговли. У каждой группы полей один писатель.
type State struct {
	mu sync.RWMutex
	c  models.TradingConditions

	ready map[Source]chan struct{}
	once  map[Source]*sync.Once
}

// NewState: дефолты до первого обновления. С btc_pulse стартуем в режиме "BTC падает".
func NewState(priceDowntrend bool) *State {
	c := models.DefaultConditions()
	c.PriceTrendDowntrend = priceDowntrend

	s := &State{
		c:     c,
		ready: map[Source]chan struct{}{},
		once:  map[Source]*sync.Once{},
	}
	for _, src := range []Source{SourcePairs, SourceSentiment, SourcePrice} {
		s.ready[src] = make(chan struct{})
		s.once[src] = &sync.Once{}
	}
	return s
}

// Snapshot: копия условий; мапа пар общая, но её никто не мутирует.
func (s *State) Snapshot() models.TradingConditions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

func (s *State) SetSentiment(u SentimentUpdate) {
	s.mu.Lock()
	s.c.SentimentValue = u.Value
	s.c.SentimentAllowsTrading = u.Allows && !u.Downtrend && !u.Drop
	s.c.SentimentDowntrend = u.Downtrend
	s.c.SentimentDrop = u.Drop
	s.mu.Unlock()
	s.markReady(SourceSentiment)
}

func (s *State) SetPriceDowntrend(v bool) {
	s.mu.Lock()
	s.c.PriceTrendDowntrend = v
	s.mu.Unlock()
	s.markReady(SourcePrice)
}

// SetPairs публикует новый набор торгуемых пар. Переданную мапу дальше менять нельзя.
func (s *State) SetPairs(pairs map[string]struct{}) {
	s.mu.Lock()
	s.c.Pairs = pairs
	s.mu.Unlock()
	s.markReady(SourcePairs)
}

func (s *State) SetProfile(name models.ProfileName) {
	s.mu.Lock()
	s.c.ActiveProfile = name
	s.mu.Unlock()
}

func (s *State) markReady(src Source) {
	s.once[src].Do(func() { close(s.ready[src]) })
}

// Ready закрывается после первой публикации источника.
func (s *State) Ready(src Source) <-chan struct{} { return s.ready[src] }

// Wait ждёт первую публикацию источника или отмену контекста.
func (s *State) Wait(ctx context.Context, src Source) error {
	select {
	case <-s.ready[src]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
