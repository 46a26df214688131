package settings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tbourn/go-memes-bot/internal/domain"
)

// MemStore is a process-local Store for development runs and tests.
// Nothing survives a restart.
type MemStore struct {
	mu        sync.Mutex
	threshold int
	reposted  map[string]domain.Repost
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store whose threshold starts at def.
func NewMemStore(def int) *MemStore {
	return &MemStore{threshold: def, reposted: make(map[string]domain.Repost)}
}

func (s *MemStore) Threshold(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold, nil
}

func (s *MemStore) SetThreshold(ctx context.Context, n int) error {
	if n < 1 {
		return ErrInvalidThreshold
	}
	s.mu.Lock()
	s.threshold = n
	s.mu.Unlock()
	return nil
}

func (s *MemStore) IsReposted(ctx context.Context, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reposted[postID]
	return ok, nil
}

func (s *MemStore) MarkReposted(ctx context.Context, postID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reposted[postID]; ok {
		return false, nil
	}
	s.reposted[postID] = domain.Repost{PostID: postID, ChannelID: channelID, ClaimedAt: time.Now().UTC()}
	return true, nil
}

func (s *MemStore) ListReposted(ctx context.Context, offset, limit int) ([]domain.Repost, int64, error) {
	s.mu.Lock()
	all := make([]domain.Repost, 0, len(s.reposted))
	for _, r := range s.reposted {
		all = append(all, r)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].ClaimedAt.Equal(all[j].ClaimedAt) {
			return all[i].ClaimedAt.After(all[j].ClaimedAt)
		}
		return all[i].PostID > all[j].PostID
	})
	total := int64(len(all))
	if offset >= len(all) {
		return []domain.Repost{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}
