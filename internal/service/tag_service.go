package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

// tagServiceImpl implements TagService.
type tagServiceImpl struct {
	tags    repository.TagRepository
	fanTags repository.FanTagRepository
}

// NewTagService creates a new tag service.
func NewTagService(tags repository.TagRepository, fanTags repository.FanTagRepository) TagService {
	return &tagServiceImpl{tags: tags, fanTags: fanTags}
}

func (s *tagServiceImpl) ListTags(ctx context.Context, accountID string) ([]*domain.Tag, error) {
	return s.tags.FindByAccount(ctx, accountID)
}

func (s *tagServiceImpl) GetTag(ctx context.Context, accountID string, tagID int) (*domain.Tag, error) {
	return s.tags.FindByAccountAndTagID(ctx, accountID, tagID)
}

// CreateTag registers a new local tag. The external id is allocated as
// max(tag_id)+1 within the account so locally created tags never collide
// with mirrored ones from the same snapshot.
func (s *tagServiceImpl) CreateTag(ctx context.Context, accountID, name string) (*domain.Tag, error) {
	name, err := normalizeTagName(name)
	if err != nil {
		return nil, err
	}

	if _, err := s.tags.FindByAccountAndName(ctx, accountID, name); err == nil {
		return nil, ErrTagAlreadyExists
	} else if !errors.Is(err, repository.ErrTagNotFound) {
		return nil, err
	}

	maxID, err := s.tags.MaxTagIDByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tag := &domain.Tag{
		AccountID: accountID,
		TagID:     maxID + 1,
		Name:      name,
	}
	if err := s.tags.Create(ctx, tag); err != nil {
		if errors.Is(err, repository.ErrDuplicateTag) {
			return nil, ErrTagAlreadyExists
		}
		return nil, err
	}
	return tag, nil
}

func (s *tagServiceImpl) RenameTag(ctx context.Context, accountID string, tagID int, name string) (*domain.Tag, error) {
	name, err := normalizeTagName(name)
	if err != nil {
		return nil, err
	}

	tag, err := s.tags.FindByAccountAndTagID(ctx, accountID, tagID)
	if err != nil {
		return nil, err
	}

	// A collision with another tag blocks the rename; renaming a tag to
	// its own current name is a no-op.
	if existing, err := s.tags.FindByAccountAndName(ctx, accountID, name); err == nil {
		if existing.TagID != tagID {
			return nil, ErrTagAlreadyExists
		}
		return tag, nil
	} else if !errors.Is(err, repository.ErrTagNotFound) {
		return nil, err
	}

	tag.Name = name
	if err := s.tags.Update(ctx, tag); err != nil {
		if errors.Is(err, repository.ErrDuplicateTag) {
			return nil, ErrTagAlreadyExists
		}
		return nil, err
	}
	return tag, nil
}

func (s *tagServiceImpl) DeleteTag(ctx context.Context, accountID string, tagID int) error {
	return s.tags.Delete(ctx, accountID, tagID)
}

func (s *tagServiceImpl) FansByTag(ctx context.Context, accountID string, tagID int) ([]*domain.Fan, error) {
	if _, err := s.tags.FindByAccountAndTagID(ctx, accountID, tagID); err != nil {
		return nil, err
	}
	return s.fanTags.FindFansByTag(ctx, accountID, tagID)
}

func (s *tagServiceImpl) TagStatistics(ctx context.Context, accountID string) ([]*TagStat, error) {
	tags, err := s.tags.FindByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	stats := make([]*TagStat, 0, len(tags))
	for _, tag := range tags {
		count, err := s.fanTags.CountByTag(ctx, tag.ID)
		if err != nil {
			return nil, err
		}
		stats = append(stats, &TagStat{TagID: tag.TagID, Name: tag.Name, Count: count})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].TagID < stats[j].TagID
	})
	return stats, nil
}

func (s *tagServiceImpl) SyncTagCounts(ctx context.Context, accountID string) error {
	tags, err := s.tags.FindByAccount(ctx, accountID)
	if err != nil {
		return err
	}

	for _, tag := range tags {
		if err := refreshTagCount(ctx, s.tags, s.fanTags, tag); err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Str(log.FieldAccountID, accountID).
				Int(log.FieldTagID, tag.TagID).
				Msg("failed to refresh tag count")
		}
	}
	return nil
}

// refreshTagCount recomputes one tag's cached count from the relation
// table and persists it when it drifted.
func refreshTagCount(ctx context.Context, tags repository.TagRepository, fanTags repository.FanTagRepository, tag *domain.Tag) error {
	count, err := fanTags.CountByTag(ctx, tag.ID)
	if err != nil {
		return err
	}
	if tag.Count == int(count) {
		return nil
	}
	tag.Count = int(count)
	return tags.Update(ctx, tag)
}

func normalizeTagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 30 {
		return "", ErrInvalidTagName
	}
	return name, nil
}
