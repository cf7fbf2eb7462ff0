package scraper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"vehicle-pricer/cache"
	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

var corsa = models.VehicleQuery{Category: "otomobil", Brand: "opel", Model: "corsa", MinYear: 2020, MaxYear: 2020}

func resultWith(obs ...models.PriceObservation) *models.ProviderResult {
	return &models.ProviderResult{Source: "fake", URL: "https://example.test", Observations: obs, FetchedAt: time.Now()}
}

func TestGuardPassesResultThrough(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		return resultWith(300000, 310000), nil
	})

	res, err := Guard("fake", src, time.Second, utils.NewNopLogger()).Fetch(context.Background(), corsa)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Observations) != 2 {
		t.Errorf("Observations: got %v", res.Observations)
	}
}

func TestGuardTimeoutYieldsEmptyResult(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		time.Sleep(time.Second)
		return resultWith(300000), nil
	})

	start := time.Now()
	res, err := Guard("slow", src, 20*time.Millisecond, utils.NewNopLogger()).Fetch(context.Background(), corsa)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Guard did not return at its timeout")
	}
	if !res.Empty() || res.Failure != models.FailureTransport || res.Source != "slow" {
		t.Errorf("timeout result: got %+v", res)
	}
}

func TestGuardRecoversPanic(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		panic("selector exploded")
	})

	res, err := Guard("broken", src, time.Second, utils.NewNopLogger()).Fetch(context.Background(), corsa)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Empty() || res.Failure != models.FailureTransport {
		t.Errorf("panic result: got %+v", res)
	}
}

func TestGuardPropagatesStructuralErrors(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		return nil, eris.Wrap(models.ErrCacheCorrupt, "prices:fake")
	})

	_, err := Guard("fake", src, time.Second, utils.NewNopLogger()).Fetch(context.Background(), corsa)
	if !eris.Is(err, models.ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt, got %v", err)
	}
}

func TestCachedServesRepeatQueries(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		atomic.AddInt32(&calls, 1)
		return resultWith(300000), nil
	})
	store := cache.NewMemoryStore[models.ProviderResult](time.Minute, nil)
	c := Cached("fake", src, store, utils.NewNopLogger())

	for i := 0; i < 3; i++ {
		res, err := c.Fetch(context.Background(), corsa)
		if err != nil || len(res.Observations) != 1 {
			t.Fatalf("Fetch %d: %+v %v", i, res, err)
		}
	}
	if calls != 1 {
		t.Errorf("inner source called %d times, want 1", calls)
	}

	wider := corsa.WithYearRange(2019, 2021)
	if _, err := c.Fetch(context.Background(), wider); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("a differently filtered query must miss the cache, calls=%d", calls)
	}
}

func TestCachedSkipsFailures(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		atomic.AddInt32(&calls, 1)
		return models.EmptyResult("fake", "", models.FailureBlocked), nil
	})
	c := Cached("fake", src, cache.NewMemoryStore[models.ProviderResult](time.Minute, nil), utils.NewNopLogger())

	_, _ = c.Fetch(context.Background(), corsa)
	_, _ = c.Fetch(context.Background(), corsa)
	if calls != 2 {
		t.Errorf("failed results must not be cached, calls=%d", calls)
	}
}

func TestCachedKeepsGenuineEmptyResults(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		atomic.AddInt32(&calls, 1)
		return models.EmptyResult("fake", "https://example.test", models.FailureNone), nil
	})
	c := Cached("fake", src, cache.NewMemoryStore[models.ProviderResult](time.Minute, nil), utils.NewNopLogger())

	_, _ = c.Fetch(context.Background(), corsa)
	_, _ = c.Fetch(context.Background(), corsa)
	if calls != 1 {
		t.Errorf("an empty successful result should be cached, calls=%d", calls)
	}
}

type corruptStore struct{}

func (corruptStore) Get(context.Context, string) (models.ProviderResult, bool, error) {
	return models.ProviderResult{}, false, eris.Wrap(models.ErrCacheCorrupt, "bad gzip")
}

func (corruptStore) Set(context.Context, string, models.ProviderResult) error { return nil }

func TestCachedSurfacesCorruption(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
		t.Error("inner source must not be called when the cache is corrupt")
		return nil, nil
	})
	_, err := Cached("fake", src, corruptStore{}, utils.NewNopLogger()).Fetch(context.Background(), corsa)
	if !eris.Is(err, models.ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt, got %v", err)
	}
}
