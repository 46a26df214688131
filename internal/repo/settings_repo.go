package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-memes-bot/internal/domain"
)

// GetOrInitSetting returns the integer setting stored under key, inserting
// def first when the row is absent. Concurrent initializers converge on the
// first inserted value.
func GetOrInitSetting(ctx context.Context, db *gorm.DB, key string, def int) (int, error) {
	seed := &domain.Setting{Key: key, IntValue: def, UpdatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seed).Error; err != nil {
		return 0, err
	}
	return GetSetting(ctx, db, key)
}

// GetSetting returns the integer setting stored under key, or ErrNotFound.
func GetSetting(ctx context.Context, db *gorm.DB, key string) (int, error) {
	var s domain.Setting
	err := db.WithContext(ctx).Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return s.IntValue, nil
}

// PutSetting upserts the integer setting stored under key.
func PutSetting(ctx context.Context, db *gorm.DB, key string, value int) error {
	s := &domain.Setting{Key: key, IntValue: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"int_value", "updated_at"}),
		}).
		Create(s).Error
}

// InsertRepostIfAbsent records postID in the reposted set. It reports true
// only for the caller whose insert created the row; every later (or
// concurrent, losing) caller gets false.
func InsertRepostIfAbsent(ctx context.Context, db *gorm.DB, postID, channelID string) (bool, error) {
	rec := &domain.Repost{PostID: postID, ChannelID: channelID, ClaimedAt: time.Now().UTC()}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RepostExists reports whether postID is in the reposted set.
func RepostExists(ctx context.Context, db *gorm.DB, postID string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Repost{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountReposts returns the size of the reposted set.
func CountReposts(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Repost{}).Count(&n).Error
	return n, err
}

// ListRepostsPage returns reposts ordered by claim time, newest first.
func ListRepostsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Repost, error) {
	var out []domain.Repost
	err := db.WithContext(ctx).
		Order("claimed_at DESC").
		Order("post_id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
