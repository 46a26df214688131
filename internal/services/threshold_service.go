package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/settings"
	"github.com/tbourn/go-memes-bot/internal/utils"
)

// ThresholdService is the administrative view of the settings store, shared
// by chat commands, the admin API and the CLI.
type ThresholdService struct {
	Store settings.Store
}

// NewThresholdService constructs a ThresholdService over s.
func NewThresholdService(s settings.Store) *ThresholdService {
	return &ThresholdService{Store: s}
}

// Get returns the live threshold.
func (s *ThresholdService) Get(ctx context.Context) (int, error) {
	return s.Store.Threshold(ctx)
}

// Set parses raw and stores it. Anything but a positive integer yields
// ErrInvalidThreshold and leaves the stored value untouched.
func (s *ThresholdService) Set(ctx context.Context, raw string) (int, error) {
	n, err := ParseThreshold(raw)
	if err != nil {
		return 0, err
	}
	if err := s.Store.SetThreshold(ctx, n); err != nil {
		return 0, err
	}
	return n, nil
}

// ParseThreshold validates a user-supplied threshold.
func ParseThreshold(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, raw)
	}
	return n, nil
}

// ErrListingUnsupported is returned when the configured store cannot page
// through reposts.
var ErrListingUnsupported = errors.New("store does not support listing reposts")

// ListReposts returns a page of claimed posts, newest first. page is
// 1-based; invalid values fall back to page 1 of 20.
func (s *ThresholdService) ListReposts(ctx context.Context, page, pageSize int) ([]domain.Repost, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	l, ok := settings.AsLister(s.Store)
	if !ok {
		return nil, 0, ErrListingUnsupported
	}
	return l.ListReposted(ctx, utils.PageOffset(page, pageSize), pageSize)
}
