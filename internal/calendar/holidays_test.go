package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holidayBody = `{
  "2025-01-01": {"date": "2025-01-01", "name": "元旦", "isOffDay": true},
  "2025-01-26": {"date": "2025-01-26", "name": "春节补班", "isOffDay": false}
}`

func TestHTTPHolidayProvider(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, holidayBody)
	}))
	defer server.Close()

	p := NewHTTPHolidayProvider(server.URL+"/v1/holidays/%d", time.Second)
	holidays, err := p.Holidays(context.Background(), 2025)
	require.NoError(t, err)

	assert.Equal(t, "/v1/holidays/2025", gotPath)
	require.Len(t, holidays, 2)
	assert.True(t, holidays["2025-01-01"].IsOffDay)
	assert.Equal(t, "元旦", holidays["2025-01-01"].Name)
	assert.False(t, holidays["2025-01-26"].IsOffDay)
}

func TestHTTPHolidayProvider_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewHTTPHolidayProvider(server.URL+"/%d", time.Second).Holidays(context.Background(), 2025)
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "not json")
		}))
		defer server.Close()

		_, err := NewHTTPHolidayProvider(server.URL+"/%d", time.Second).Holidays(context.Background(), 2025)
		assert.Error(t, err)
	})
}

type countingHolidays struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (c *countingHolidays) Holidays(ctx context.Context, year int) (map[string]Holiday, error) {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	if c.err != nil {
		return nil, c.err
	}
	return map[string]Holiday{
		"2025-01-01": {Date: "2025-01-01", Name: "New Year", IsOffDay: true},
	}, nil
}

func TestCachedHolidayProvider_FetchesOnce(t *testing.T) {
	source := &countingHolidays{}
	cache := NewCachedHolidayProvider(source, nil, time.Hour, time.Minute)

	for i := 0; i < 3; i++ {
		holidays, err := cache.Holidays(context.Background(), 2025)
		require.NoError(t, err)
		assert.Len(t, holidays, 1)
	}
	assert.Equal(t, int32(1), source.calls.Load())
	assert.True(t, cache.Cached(2025))
	assert.False(t, cache.Cached(2026))
}

func TestCachedHolidayProvider_CollapsesConcurrentFetches(t *testing.T) {
	source := &countingHolidays{release: make(chan struct{})}
	cache := NewCachedHolidayProvider(source, nil, time.Hour, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Holidays(context.Background(), 2025)
			assert.NoError(t, err)
		}()
	}

	// Let the goroutines pile onto the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()

	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCachedHolidayProvider_BacksOffAfterFailure(t *testing.T) {
	source := &countingHolidays{err: fmt.Errorf("upstream down")}
	cache := NewCachedHolidayProvider(source, nil, time.Hour, time.Minute)
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Holidays(context.Background(), 2025)
	require.Error(t, err)

	_, err = cache.Holidays(context.Background(), 2025)
	assert.ErrorIs(t, err, ErrHolidaysUnavailable)
	assert.Equal(t, int32(1), source.calls.Load())

	now = now.Add(2 * time.Minute)
	source.err = nil
	holidays, err := cache.Holidays(context.Background(), 2025)
	require.NoError(t, err)
	assert.Len(t, holidays, 1)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestCachedHolidayProvider_Redis(t *testing.T) {
	t.Run("writes through", func(t *testing.T) {
		redis := storage.NewMockRedisClient()
		cache := NewCachedHolidayProvider(&countingHolidays{}, redis, 48*time.Hour, time.Minute)

		_, err := cache.Holidays(context.Background(), 2025)
		require.NoError(t, err)

		assert.Contains(t, redis.Data, "calendar:holidays:2025")
		assert.Equal(t, 48*time.Hour, redis.TTLs["calendar:holidays:2025"])
	})

	t.Run("reads before upstream", func(t *testing.T) {
		redis := storage.NewMockRedisClient()
		require.NoError(t, redis.Set(context.Background(), "calendar:holidays:2025", map[string]Holiday{
			"2025-05-01": {Date: "2025-05-01", Name: "Labour Day", IsOffDay: true},
		}, 0))

		source := &countingHolidays{}
		cache := NewCachedHolidayProvider(source, redis, time.Hour, time.Minute)
		holidays, err := cache.Holidays(context.Background(), 2025)
		require.NoError(t, err)

		assert.Equal(t, int32(0), source.calls.Load())
		assert.True(t, holidays["2025-05-01"].IsOffDay)
	})

	t.Run("redis error falls through to upstream", func(t *testing.T) {
		redis := storage.NewMockRedisClient()
		redis.GetErr = fmt.Errorf("redis down")

		source := &countingHolidays{}
		cache := NewCachedHolidayProvider(source, redis, time.Hour, time.Minute)
		_, err := cache.Holidays(context.Background(), 2025)
		require.NoError(t, err)
		assert.Equal(t, int32(1), source.calls.Load())
	})
}
