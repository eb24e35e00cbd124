package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"poker-quiz-bot/internal/app"
	"poker-quiz-bot/internal/domain"
	"poker-quiz-bot/internal/infra/memory"
)

func TestCatalogCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{CatalogLoader: memory.NewStaticCatalogLoader(sampleCatalog())}
	cache := NewCatalogCache(newClient(mr), loader, time.Minute)

	questions, err := cache.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(questions) != 2 || questions[1].Options[1] != "Call" {
		t.Fatalf("unexpected catalog %+v", questions)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.count())
	}
	if ttl := mr.TTL(catalogKey); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected jittered ttl, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	_, _ = cache.LoadCatalog(context.Background())
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.count())
	}

	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.LoadCatalog(context.Background())
	if loader.count() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.count())
	}
}

func TestCatalogCacheConcurrentMisses(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{CatalogLoader: memory.NewStaticCatalogLoader(sampleCatalog())}
	cache := NewCatalogCache(newClient(mr), loader, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.LoadCatalog(context.Background()); err != nil {
				t.Errorf("load catalog: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := loader.count(); n < 1 || n > 8 {
		t.Fatalf("unexpected loader calls %d", n)
	}
	if !mr.Exists(catalogKey) {
		t.Fatalf("expected catalog cached")
	}
}

type countingLoader struct {
	app.CatalogLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadCatalog(ctx context.Context) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.CatalogLoader.LoadCatalog(ctx)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleCatalog() []domain.Question {
	return []domain.Question{
		{ID: 1, Category: "preflop", Prompt: "Folds to Hero on the CO.", Options: []string{"Fold", "Raise"}, CorrectOption: 1, Explanation: "Open."},
		{ID: 2, Category: "river", Prompt: "Villain jams.", Options: []string{"Fold", "Call"}, CorrectOption: 0, Explanation: "Fold."},
	}
}
