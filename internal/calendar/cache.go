package calendar

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// ErrHolidaysUnavailable is returned while a failed year is backing off
var ErrHolidaysUnavailable = errors.New("holiday list unavailable")

// CachedHolidayProvider caches holiday lists per year in memory, optionally
// backed by Redis, and collapses concurrent fetches of the same year into one
// upstream request. After a failed fetch the year is not retried until
// retryAfter has passed.
type CachedHolidayProvider struct {
	source     HolidayProvider
	redis      storage.RedisClient
	ttl        time.Duration
	retryAfter time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	years    map[int]map[string]Holiday
	failedAt map[int]time.Time
	group    singleflight.Group
}

// NewCachedHolidayProvider wraps source. redis may be nil.
func NewCachedHolidayProvider(source HolidayProvider, redis storage.RedisClient, ttl, retryAfter time.Duration) *CachedHolidayProvider {
	return &CachedHolidayProvider{
		source:     source,
		redis:      redis,
		ttl:        ttl,
		retryAfter: retryAfter,
		now:        time.Now,
		years:      make(map[int]map[string]Holiday),
		failedAt:   make(map[int]time.Time),
	}
}

// Holidays returns the cached list for year, fetching it once if needed
func (c *CachedHolidayProvider) Holidays(ctx context.Context, year int) (map[string]Holiday, error) {
	c.mu.RLock()
	holidays, ok := c.years[year]
	failedAt, failed := c.failedAt[year]
	c.mu.RUnlock()

	if ok {
		return holidays, nil
	}
	if failed && c.now().Sub(failedAt) < c.retryAfter {
		return nil, ErrHolidaysUnavailable
	}

	// The shared fetch must not be cancelled by whichever caller started it
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(strconv.Itoa(year), func() (interface{}, error) {
		return c.load(shared, year)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]Holiday), nil
}

// Cached reports whether year is already held in memory
func (c *CachedHolidayProvider) Cached(year int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.years[year]
	return ok
}

func (c *CachedHolidayProvider) load(ctx context.Context, year int) (map[string]Holiday, error) {
	c.mu.RLock()
	holidays, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return holidays, nil
	}

	if c.redis != nil {
		var cached map[string]Holiday
		found, err := c.redis.GetJSON(ctx, redisKey(year), &cached)
		if err != nil {
			logger.Warn("Failed to read cached holidays",
				logger.Int("year", year),
				logger.ErrorField(err),
			)
		} else if found && cached != nil {
			c.store(year, cached)
			logger.HolidayFetchTotal.WithLabelValues("redis_hit").Inc()
			return cached, nil
		}
	}

	holidays, err := c.source.Holidays(ctx, year)
	if err != nil {
		c.mu.Lock()
		c.failedAt[year] = c.now()
		c.mu.Unlock()
		logger.HolidayFetchTotal.WithLabelValues("error").Inc()
		logger.Warn("Failed to fetch holidays, treating every weekday as a trading day",
			logger.Int("year", year),
			logger.Duration("retry_after", c.retryAfter),
			logger.ErrorField(err),
		)
		return nil, err
	}

	c.store(year, holidays)
	logger.HolidayFetchTotal.WithLabelValues("success").Inc()
	logger.Info("Loaded holiday list",
		logger.Int("year", year),
		logger.Int("entries", len(holidays)),
	)

	if c.redis != nil {
		if err := c.redis.Set(ctx, redisKey(year), holidays, c.ttl); err != nil {
			logger.Warn("Failed to cache holidays in Redis",
				logger.Int("year", year),
				logger.ErrorField(err),
			)
		}
	}
	return holidays, nil
}

func (c *CachedHolidayProvider) store(year int, holidays map[string]Holiday) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.years[year] = holidays
	delete(c.failedAt, year)
}

func redisKey(year int) string {
	return fmt.Sprintf("calendar:holidays:%d", year)
}
