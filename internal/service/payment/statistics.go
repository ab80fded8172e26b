package payment

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/therapyassist/therapy-api/internal/model"
)

// statisticsCache holds aggregates per window. The generation advances on
// every payment write; a result computed while a write landed is not stored.
type statisticsCache struct {
	mu    sync.Mutex
	gen   uint64
	store *cache.Cache
}

func newStatisticsCache(store *cache.Cache) *statisticsCache {
	return &statisticsCache{store: store}
}

func (c *statisticsCache) get(key string) (*model.PaymentStatistics, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil, c.gen, false
	}
	if v, ok := c.store.Get(key); ok {
		return v.(*model.PaymentStatistics), c.gen, true
	}
	return nil, c.gen, false
}

func (c *statisticsCache) put(key string, gen uint64, stats *model.PaymentStatistics) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil || gen != c.gen {
		return false
	}
	c.store.SetDefault(key, stats)
	return true
}

func (c *statisticsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.store != nil {
		c.store.Flush()
	}
}

// Statistics aggregates payments dated within [from 00:00, to + 1 day 00:00).
// Either bound may be nil. Results are cached until the next payment write.
func (s *Service) Statistics(ctx context.Context, from, to *model.Date) (*model.PaymentStatistics, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	key := statisticsKey(from, to)
	cached, gen, ok := s.stats.get(key)
	if ok {
		s.metrics.StatisticsCacheHits.Inc()
		return cloneStatistics(cached), nil
	}

	payments, err := s.repo.Filter(ctx, &model.PaymentFilter{DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}

	stats := Summarize(payments)
	stats.DateFrom, stats.DateTo = from, to
	s.stats.put(key, gen, stats)
	return cloneStatistics(stats), nil
}

// Summarize totals payments overall and per method with exact decimal sums.
// Every known method is present in PerMethod, with zero totals when unused.
func Summarize(payments []*model.Payment) *model.PaymentStatistics {
	stats := &model.PaymentStatistics{
		TotalAmount: decimal.Zero,
		PerMethod:   make(map[model.PaymentMethod]model.MethodTotals, len(model.PaymentMethods)),
	}
	for _, m := range model.PaymentMethods {
		stats.PerMethod[m] = model.MethodTotals{Amount: decimal.Zero}
	}

	for _, p := range payments {
		stats.TotalCount++
		stats.TotalAmount = stats.TotalAmount.Add(p.Amount)

		totals := stats.PerMethod[p.Method]
		totals.Count++
		totals.Amount = totals.Amount.Add(p.Amount)
		stats.PerMethod[p.Method] = totals
	}
	return stats
}

func statisticsKey(from, to *model.Date) string {
	key := "stats:"
	if from != nil {
		key += from.String()
	}
	key += ":"
	if to != nil {
		key += to.String()
	}
	return key
}

func cloneStatistics(stats *model.PaymentStatistics) *model.PaymentStatistics {
	c := *stats
	c.PerMethod = make(map[model.PaymentMethod]model.MethodTotals, len(stats.PerMethod))
	for k, v := range stats.PerMethod {
		c.PerMethod[k] = v
	}
	return &c
}

// InvalidateStatistics drops every cached aggregate.
func (s *Service) InvalidateStatistics() {
	s.stats.invalidate()
}
