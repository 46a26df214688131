package settings

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/repo"
)

// SQLStore keeps settings in the relational database through GORM.
type SQLStore struct {
	DB               *gorm.DB
	DefaultThreshold int
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a store over db. def is the threshold written on first
// read when no value is stored yet.
func NewSQLStore(db *gorm.DB, def int) *SQLStore {
	return &SQLStore{DB: db, DefaultThreshold: def}
}

func (s *SQLStore) Threshold(ctx context.Context) (int, error) {
	v, err := repo.GetOrInitSetting(ctx, s.DB, domain.SettingThreshold, s.DefaultThreshold)
	if err != nil {
		return 0, unavailable("threshold", err)
	}
	return v, nil
}

func (s *SQLStore) SetThreshold(ctx context.Context, n int) error {
	if n < 1 {
		return ErrInvalidThreshold
	}
	if err := repo.PutSetting(ctx, s.DB, domain.SettingThreshold, n); err != nil {
		return unavailable("set threshold", err)
	}
	return nil
}

func (s *SQLStore) IsReposted(ctx context.Context, postID string) (bool, error) {
	ok, err := repo.RepostExists(ctx, s.DB, postID)
	if err != nil {
		return false, unavailable("is reposted", err)
	}
	return ok, nil
}

func (s *SQLStore) MarkReposted(ctx context.Context, postID, channelID string) (bool, error) {
	ok, err := repo.InsertRepostIfAbsent(ctx, s.DB, postID, channelID)
	if err != nil {
		return false, unavailable("mark reposted", err)
	}
	return ok, nil
}

// ListReposted returns a page of claimed posts (newest first) and the total.
func (s *SQLStore) ListReposted(ctx context.Context, offset, limit int) ([]domain.Repost, int64, error) {
	total, err := repo.CountReposts(ctx, s.DB)
	if err != nil {
		return nil, 0, unavailable("count reposts", err)
	}
	if total == 0 {
		return []domain.Repost{}, 0, nil
	}
	items, err := repo.ListRepostsPage(ctx, s.DB, offset, limit)
	if err != nil {
		return nil, 0, unavailable("list reposts", err)
	}
	return items, total, nil
}
