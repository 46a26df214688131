package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-memes-bot/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:settings_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	v, err := s.Threshold(ctx)
	if err != nil || v != 10 {
		t.Fatalf("default Threshold = %d, %v; want 10", v, err)
	}

	for _, bad := range []int{0, -5} {
		if err := s.SetThreshold(ctx, bad); !errors.Is(err, ErrInvalidThreshold) {
			t.Fatalf("SetThreshold(%d) err = %v; want ErrInvalidThreshold", bad, err)
		}
	}
	if v, _ := s.Threshold(ctx); v != 10 {
		t.Fatalf("invalid SetThreshold mutated state: %d", v)
	}

	if err := s.SetThreshold(ctx, 3); err != nil {
		t.Fatalf("SetThreshold(3): %v", err)
	}
	if v, _ := s.Threshold(ctx); v != 3 {
		t.Fatalf("Threshold after set = %d; want 3", v)
	}

	if ok, err := s.IsReposted(ctx, "p1"); err != nil || ok {
		t.Fatalf("IsReposted(p1) before claim = %v, %v", ok, err)
	}
	if ok, err := s.MarkReposted(ctx, "p1", "c1"); err != nil || !ok {
		t.Fatalf("first MarkReposted = %v, %v; want true", ok, err)
	}
	if ok, err := s.MarkReposted(ctx, "p1", "c1"); err != nil || ok {
		t.Fatalf("second MarkReposted = %v, %v; want false", ok, err)
	}
	if ok, err := s.IsReposted(ctx, "p1"); err != nil || !ok {
		t.Fatalf("IsReposted(p1) after claim = %v, %v", ok, err)
	}
}

func TestSQLStore_Contract(t *testing.T) {
	exerciseStore(t, NewSQLStore(newTestDB(t), 10))
}

func TestMemStore_Contract(t *testing.T) {
	exerciseStore(t, NewMemStore(10))
}

func TestCached_Contract(t *testing.T) {
	exerciseStore(t, NewCached(NewMemStore(10), 16))
}

func TestNewCached_ZeroSizeReturnsBackingStore(t *testing.T) {
	base := NewMemStore(1)
	if got := NewCached(base, 0); got != Store(base) {
		t.Fatalf("expected backing store to be returned unchanged")
	}
}

func TestSQLStore_ListReposted(t *testing.T) {
	s := NewSQLStore(newTestDB(t), 10)
	ctx := context.Background()

	items, total, err := s.ListReposted(ctx, 0, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("empty ListReposted = %v, %d, %v", items, total, err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.MarkReposted(ctx, id, "chan"); err != nil {
			t.Fatalf("MarkReposted(%s): %v", id, err)
		}
	}
	items, total, err = s.ListReposted(ctx, 0, 2)
	if err != nil || total != 3 || len(items) != 2 {
		t.Fatalf("ListReposted = %v, %d, %v", items, total, err)
	}
}

func TestSQLStore_BackendFailureIsUnavailable(t *testing.T) {
	db := newTestDB(t)
	s := NewSQLStore(db, 10)
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_, err := s.IsReposted(context.Background(), "p")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := s.Threshold(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Threshold, got %v", err)
	}
}

// countingStore records calls that reach the backing store.
type countingStore struct {
	*MemStore
	mu         sync.Mutex
	isReposted int
}

func (c *countingStore) IsReposted(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	c.isReposted++
	c.mu.Unlock()
	return c.MemStore.IsReposted(ctx, id)
}

func TestCached_PositiveAnswersAreServedLocally(t *testing.T) {
	backing := &countingStore{MemStore: NewMemStore(10)}
	s := NewCached(backing, 8)
	ctx := context.Background()

	// Negative answers are never cached.
	for i := 0; i < 3; i++ {
		if ok, _ := s.IsReposted(ctx, "p"); ok {
			t.Fatalf("unexpected positive")
		}
	}
	if backing.isReposted != 3 {
		t.Fatalf("negative lookups should reach backing store, got %d calls", backing.isReposted)
	}

	if _, err := s.MarkReposted(ctx, "p", "c"); err != nil {
		t.Fatalf("MarkReposted: %v", err)
	}
	for i := 0; i < 3; i++ {
		if ok, _ := s.IsReposted(ctx, "p"); !ok {
			t.Fatalf("expected cached positive")
		}
	}
	if backing.isReposted != 3 {
		t.Fatalf("positive lookups should be served by the cache, got %d calls", backing.isReposted)
	}
}

func TestParseClaim(t *testing.T) {
	r := parseClaim("p1", "chan|with|pipes|1700000000")
	if r.PostID != "p1" || r.ChannelID != "chan|with|pipes" || r.ClaimedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected parse: %+v", r)
	}
	r = parseClaim("p2", "garbage")
	if r.PostID != "p2" || r.ChannelID != "" || !r.ClaimedAt.IsZero() {
		t.Fatalf("unexpected parse of garbage: %+v", r)
	}
}

func TestMemStore_ListReposted(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(1)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.MarkReposted(ctx, id, "ch"); err != nil {
			t.Fatalf("MarkReposted(%s): %v", id, err)
		}
	}
	page, total, err := s.ListReposted(ctx, 1, 1)
	if err != nil || total != 3 || len(page) != 1 {
		t.Fatalf("page=%v total=%d err=%v", page, total, err)
	}
	if page, _, _ := s.ListReposted(ctx, 5, 10); len(page) != 0 {
		t.Fatalf("offset past end should be empty, got %v", page)
	}
}

func TestAsLister_LooksThroughCache(t *testing.T) {
	base := NewMemStore(1)
	l, ok := AsLister(NewCached(base, 8))
	if !ok || l != Lister(base) {
		t.Fatalf("expected the backing MemStore, got %T ok=%v", l, ok)
	}
	if _, ok := AsLister(&countingStore{MemStore: base}); !ok {
		t.Fatalf("embedded store should still expose ListReposted")
	}
}
