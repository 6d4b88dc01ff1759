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

// TrackRepository defines the catalog operations on tracks.
type TrackRepository interface {
	GetAll(ctx context.Context) ([]*model.Track, error)
	GetAllForAdmin(ctx context.Context) ([]*model.Track, error)
	GetByID(ctx context.Context, id string) (*model.Track, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, track *model.Track) (*model.Track, error)
	Update(ctx context.Context, id string, patch model.TrackPatch) (*model.Track, error)
	Delete(ctx context.Context, id string) error
	ToggleActive(ctx context.Context, id string) (*model.Track, error)
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db        *gorm.DB
	publisher realtime.Publisher
}

// NewGormTrackRepository creates a track repository. publisher may be nil.
func NewGormTrackRepository(db *gorm.DB, publisher realtime.Publisher) TrackRepository {
	return &gormTrackRepository{db: db, publisher: publisher}
}

// GetAll returns the tracks shown to listeners.
func (r *gormTrackRepository) GetAll(ctx context.Context) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC").
		Find(&tracks).Error
	if err != nil {
		return nil, storeErr("list", "tracks", "", err)
	}
	return tracks, nil
}

// GetAllForAdmin returns every track regardless of is_active.
func (r *gormTrackRepository) GetAllForAdmin(ctx context.Context) ([]*model.Track, error) {
	var tracks []*model.Track
	if err := r.db.WithContext(ctx).Order("sort_order ASC").Find(&tracks).Error; err != nil {
		return nil, storeErr("list", "tracks", "", err)
	}
	return tracks, nil
}

// GetByID returns (nil, nil) when no track has id.
func (r *gormTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("get", "tracks", id, err)
	}
	return &track, nil
}

func (r *gormTrackRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Track{}).Count(&n).Error; err != nil {
		return 0, storeErr("count", "tracks", "", err)
	}
	return n, nil
}

// Create inserts track; the id and timestamps are filled in on the returned record.
func (r *gormTrackRepository) Create(ctx context.Context, track *model.Track) (*model.Track, error) {
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return nil, storeErr("create", "tracks", "", err)
	}
	r.publish(ctx, realtime.EventInsert, track.ID, track)
	return track, nil
}

// Update writes only the fields set in patch and returns the stored row.
func (r *gormTrackRepository) Update(ctx context.Context, id string, patch model.TrackPatch) (*model.Track, error) {
	var updated model.Track
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// MySQL reports zero affected rows for a no-op update, so existence
		// is checked on its own.
		var n int64
		if err := tx.Model(&model.Track{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}

		cols := patch.Columns()
		cols["updated_at"] = time.Now()
		if err := tx.Model(&model.Track{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("update", "tracks", id)
		}
		return nil, storeErr("update", "tracks", id, err)
	}
	r.publish(ctx, realtime.EventUpdate, id, &updated)
	return &updated, nil
}

// Delete removes the row permanently. The audio blob is left alone.
func (r *gormTrackRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Track{})
	if res.Error != nil {
		return storeErr("delete", "tracks", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("delete", "tracks", id)
	}
	r.publish(ctx, realtime.EventDelete, id, nil)
	return nil
}

// ToggleActive flips is_active in a single UPDATE so concurrent toggles
// cannot lose each other.
func (r *gormTrackRepository) ToggleActive(ctx context.Context, id string) (*model.Track, error) {
	var updated model.Track
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Track{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_active":  gorm.Expr("NOT is_active"),
			"updated_at": time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("toggle", "tracks", id)
		}
		return nil, storeErr("toggle", "tracks", id, err)
	}
	r.publish(ctx, realtime.EventUpdate, id, &updated)
	return &updated, nil
}

func (r *gormTrackRepository) publish(ctx context.Context, typ realtime.EventType, id string, record any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, realtime.NewEvent(realtime.TopicTracks, typ, id, record)); err != nil {
		logger.Warn("failed to publish track change",
			logger.String("type", string(typ)),
			logger.String("track", id),
			logger.ErrorField(err))
	}
}
