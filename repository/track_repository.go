package repository

import (
	"context"
	"errors"
	"fmt"

	"TrackLens/core/catalog"
	"TrackLens/logger"
	"TrackLens/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTrackNotFound is returned when no track has the requested id.
var ErrTrackNotFound = errors.New("track not found")

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	ListTracks(ctx context.Context) ([]*model.Track, error)
	SearchTracks(ctx context.Context, filter catalog.Filter) ([]*model.Track, error)
	DeleteTrack(ctx context.Context, id string) (*model.Track, error)
	Ping(ctx context.Context) error
}

// gormTrackRepository implements TrackRepository on any GORM dialect.
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a new TrackRepository backed by db.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// CreateTrack inserts a validated track.
func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("invalid track %s: %w", track.ID, err)
	}
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	logger.Debug("track created", logger.String("id", track.ID), logger.String("filename", track.Filename))
	return nil
}

// GetTrackByID retrieves a track by its ID.
func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track by ID %s: %w", id, err)
	}
	return &track, nil
}

// ListTracks retrieves all tracks, oldest first.
func (r *gormTrackRepository) ListTracks(ctx context.Context) ([]*model.Track, error) {
	tracks := make([]*model.Track, 0)
	if err := r.db.WithContext(ctx).Order("analyzed_at ASC").Order("id ASC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// SearchTracks pushes the scalar predicates down to SQL and evaluates the
// JSON list predicates in Go so the query stays portable across dialects.
func (r *gormTrackRepository) SearchTracks(ctx context.Context, filter catalog.Filter) ([]*model.Track, error) {
	q := r.db.WithContext(ctx).Model(&model.Track{})
	if filter.MinBPM != nil {
		q = q.Where("bpm >= ?", *filter.MinBPM)
	}
	if filter.MaxBPM != nil {
		q = q.Where("bpm <= ?", *filter.MaxBPM)
	}
	if filter.Key != nil {
		q = q.Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: *filter.Key})
	}

	candidates := make([]*model.Track, 0)
	if err := q.Order("analyzed_at ASC").Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}

	out := make([]*model.Track, 0, len(candidates))
	for _, t := range candidates {
		if filter.MatchLists(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// DeleteTrack removes a track and returns the deleted row.
func (r *gormTrackRepository) DeleteTrack(ctx context.Context, id string) (*model.Track, error) {
	var deleted *model.Track
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track model.Track
		if err := tx.Where("id = ?", id).Take(&track).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTrackNotFound
			}
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTrackNotFound
		}
		deleted = &track
		return nil
	})
	if errors.Is(err, ErrTrackNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete track %s: %w", id, err)
	}
	return deleted, nil
}

// Ping checks database connectivity.
func (r *gormTrackRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
