package runner

import (
	"fmt"
	"sync"
	"time"

	"signal_bot/internal/models"
	elig "signal_bot/internal/modules/eligibility/service"
)

type counters struct {
	Start         int64
	StartEnabled  int64
	NotTradeable  int64
	BandsPassed   int64
	TopcoinPassed int64
	Stop          int64
}

func (c *counters) add(o counters) {
	c.Start += o.Start
	c.StartEnabled += o.StartEnabled
	c.NotTradeable += o.NotTradeable
	c.BandsPassed += o.BandsPassed
	c.TopcoinPassed += o.TopcoinPassed
	c.Stop += o.Stop
}

// Stats: счётчики сигналов за текущие сутки и с запуска.
type Stats struct {
	mu          sync.Mutex
	day, total  counters
	startedAt   time.Time
	topcoinSeen int64
}

func NewStats(startedAt time.Time) *Stats {
	return &Stats{startedAt: startedAt}
}

// Record учитывает сигнал, прошедший whitelist и подписку на тип.
func (s *Stats) Record(sig models.Signal, d elig.Decision, botActive bool) {
	if d.Reason == elig.ReasonNotWhitelisted || d.Reason == elig.ReasonKindFiltered {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch sig.Action {
	case models.ActionStart:
		s.day.Start++
		if botActive {
			s.day.StartEnabled++
		}
	case models.ActionStop:
		s.day.Stop++
	}
	if d.Reason == elig.ReasonNotTradeable {
		s.day.NotTradeable++
	}
	if d.BandsPassed {
		s.day.BandsPassed++
	}
}

// Rotate: отчёт за сутки, затем суточные счётчики переносятся в общие.
// topcoinTotal: накопленный счётчик фильтра монет из машины ботов.
func (s *Stats) Rotate(now time.Time, subscription string, topcoinTotal int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.day.TopcoinPassed = topcoinTotal - s.topcoinSeen
	s.topcoinSeen = topcoinTotal
	d := s.day

	out := []string{
		fmt.Sprintf("'%s' signals received over last 24h - #Start: %d - #Stop: %d", subscription, d.Start, d.Stop),
		fmt.Sprintf("#Start signals processed while bot was enabled last 24h: %d", d.StartEnabled),
		fmt.Sprintf("#Start signals not tradeable on exchange last 24h: %d", d.NotTradeable),
		fmt.Sprintf("#Start signals passing symrank filter last 24h: %d", d.BandsPassed),
		fmt.Sprintf("#Start signals passing topcoin filter last 24h: %d", d.TopcoinPassed),
	}

	s.total.add(d)
	s.day = counters{}
	t := s.total

	days := now.Sub(s.startedAt).Hours() / 24
	perDay := func(n int64) float64 {
		if days <= 0 {
			return 0
		}
		return float64(n) / days
	}
	return append(out,
		fmt.Sprintf("Total signals processed since start - #Start: %d (per day: %.1f) - #Stop: %d (per day: %.1f)",
			t.Start, perDay(t.Start), t.Stop, perDay(t.Stop)),
		fmt.Sprintf("Total #Start signals while bot was enabled: %d", t.StartEnabled),
		fmt.Sprintf("Total #Start signals not tradeable on exchange: %d", t.NotTradeable),
		fmt.Sprintf("Total #Start signals passing symrank filter: %d", t.BandsPassed),
		fmt.Sprintf("Total #Start signals passing topcoin filter: %d", t.TopcoinPassed),
	)
}

// nextMidnight: ближайшая полночь в loc после now.
func nextMidnight(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day()+1, 0, 0, 0, 0, loc)
}
