package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/realtime"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/model"

	"gorm.io/gorm"
)

// VideoRepository defines the catalog operations on background videos.
type VideoRepository interface {
	GetAll(ctx context.Context) ([]*model.BackgroundVideo, error)
	GetAllActive(ctx context.Context) ([]*model.BackgroundVideo, error)
	GetActive(ctx context.Context) (*model.BackgroundVideo, error)
	GetByID(ctx context.Context, id string) (*model.BackgroundVideo, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, video *model.BackgroundVideo) (*model.BackgroundVideo, error)
	Update(ctx context.Context, id string, patch model.VideoPatch) (*model.BackgroundVideo, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string) (*model.BackgroundVideo, error)
}

type gormVideoRepository struct {
	db        *gorm.DB
	publisher realtime.Publisher
}

// NewGormVideoRepository creates a video repository. publisher may be nil.
func NewGormVideoRepository(db *gorm.DB, publisher realtime.Publisher) VideoRepository {
	return &gormVideoRepository{db: db, publisher: publisher}
}

func (r *gormVideoRepository) GetAll(ctx context.Context) ([]*model.BackgroundVideo, error) {
	var videos []*model.BackgroundVideo
	if err := r.db.WithContext(ctx).Order("sort_order ASC").Find(&videos).Error; err != nil {
		return nil, storeErr("list", "background_videos", "", err)
	}
	return videos, nil
}

func (r *gormVideoRepository) GetAllActive(ctx context.Context) ([]*model.BackgroundVideo, error) {
	var videos []*model.BackgroundVideo
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC").
		Find(&videos).Error
	if err != nil {
		return nil, storeErr("list", "background_videos", "", err)
	}
	return videos, nil
}

// GetActive returns the first active video, or (nil, nil) when none is active.
func (r *gormVideoRepository) GetActive(ctx context.Context) (*model.BackgroundVideo, error) {
	var video model.BackgroundVideo
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC").
		First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("get active", "background_videos", "", err)
	}
	return &video, nil
}

func (r *gormVideoRepository) GetByID(ctx context.Context, id string) (*model.BackgroundVideo, error) {
	var video model.BackgroundVideo
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("get", "background_videos", id, err)
	}
	return &video, nil
}

func (r *gormVideoRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.BackgroundVideo{}).Count(&n).Error; err != nil {
		return 0, storeErr("count", "background_videos", "", err)
	}
	return n, nil
}

func (r *gormVideoRepository) Create(ctx context.Context, video *model.BackgroundVideo) (*model.BackgroundVideo, error) {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return nil, storeErr("create", "background_videos", "", err)
	}
	r.publish(ctx, realtime.EventInsert, video.ID, video)
	return video, nil
}

func (r *gormVideoRepository) Update(ctx context.Context, id string, patch model.VideoPatch) (*model.BackgroundVideo, error) {
	var updated model.BackgroundVideo
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// MySQL reports zero affected rows for a no-op update, so existence
		// is checked on its own.
		var n int64
		if err := tx.Model(&model.BackgroundVideo{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}

		cols := patch.Columns()
		cols["updated_at"] = time.Now()
		if err := tx.Model(&model.BackgroundVideo{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("update", "background_videos", id)
		}
		return nil, storeErr("update", "background_videos", id, err)
	}
	r.publish(ctx, realtime.EventUpdate, id, &updated)
	return &updated, nil
}

func (r *gormVideoRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.BackgroundVideo{})
	if res.Error != nil {
		return storeErr("delete", "background_videos", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("delete", "background_videos", id)
	}
	r.publish(ctx, realtime.EventDelete, id, nil)
	return nil
}

// SetActive makes id the only active video. The existence check, the
// deactivation of every other row and the activation share one transaction,
// so an uncontested call always leaves exactly one active video and a failed
// call changes nothing.
func (r *gormVideoRepository) SetActive(ctx context.Context, id string) (*model.BackgroundVideo, error) {
	var active model.BackgroundVideo
	var deactivated []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&active).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		now := time.Now()
		if err := tx.Model(&model.BackgroundVideo{}).
			Where("id <> ? AND is_active = ?", id, true).
			Pluck("id", &deactivated).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.BackgroundVideo{}).
			Where("id <> ?", id).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.BackgroundVideo{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"is_active": true, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&active).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("set active", "background_videos", id)
		}
		return nil, storeErr("set active", "background_videos", id, err)
	}

	for _, other := range deactivated {
		r.publish(ctx, realtime.EventUpdate, other, map[string]any{"id": other, "is_active": false})
	}
	r.publish(ctx, realtime.EventUpdate, id, &active)
	return &active, nil
}

func (r *gormVideoRepository) publish(ctx context.Context, typ realtime.EventType, id string, record any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, realtime.NewEvent(realtime.TopicVideos, typ, id, record)); err != nil {
		logger.Warn("failed to publish video change",
			logger.String("type", string(typ)),
			logger.String("video", id),
			logger.ErrorField(err))
	}
}
