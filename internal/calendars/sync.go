package calendars

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"staybook/internal/config"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"

	"github.com/google/uuid"
)

// How long a source stays locked while one sync cycle runs. Generous
// relative to the fetch timeout so a slow feed never overlaps itself.
const sourceLockTTL = 2 * time.Minute

type DBLayer interface {
	CreateSource(ctx context.Context, source *models.CalendarSource) error
	GetSource(ctx context.Context, id string) (*models.CalendarSource, error)
	ListSources(ctx context.Context, activeOnly bool) ([]models.CalendarSource, error)
	UpdateSource(ctx context.Context, source *models.CalendarSource) error
	DeleteSource(ctx context.Context, id string) (int64, error)
	ReplaceSourceBlocks(ctx context.Context, sourceID string, blocks []*models.ManualBlock) error
	ListOwnerBlocks(ctx context.Context) ([]models.ManualBlock, error)
}

type SourceLock interface {
	AcquireSourceLock(sourceID string, ttl time.Duration) (bool, error)
	ReleaseSourceLock(sourceID string) error
}

type FeedFetcher interface {
	Fetch(feedURL string) (string, error)
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type Service struct {
	DB       DBLayer
	Fetcher  FeedFetcher
	Lock     SourceLock
	Producer Publisher
	Topics   config.TopicConfig
	Logger   *logger.Logger
}

// ---------------- SOURCE CRUD ----------------

func (s *Service) CreateSource(ctx context.Context, req *models.CalendarSourceRequest) (*models.CalendarSource, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	source := &models.CalendarSource{
		ID:        uuid.NewString(),
		Platform:  req.Platform,
		URL:       req.URL,
		Active:    active,
		SyncState: models.SyncPending,
		CreatedAt: time.Now(),
	}
	if err := s.DB.CreateSource(ctx, source); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to save calendar source", err)
	}
	s.Logger.LogSync(source.ID, fmt.Sprintf("Registered %s feed", source.Platform))
	return source, nil
}

func (s *Service) GetSource(ctx context.Context, id string) (*models.CalendarSource, error) {
	source, err := s.DB.GetSource(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "calendar source not found", err)
	}
	return source, nil
}

func (s *Service) ListSources(ctx context.Context) ([]models.CalendarSource, error) {
	sources, err := s.DB.ListSources(ctx, false)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list calendar sources", err)
	}
	return sources, nil
}

func (s *Service) UpdateSource(ctx context.Context, id string, req *models.CalendarSourceRequest) (*models.CalendarSource, error) {
	source, err := s.DB.GetSource(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "calendar source not found", err)
	}
	source.Platform = req.Platform
	if req.URL != source.URL {
		// A new URL invalidates whatever we knew about the old feed.
		source.URL = req.URL
		source.SyncState = models.SyncPending
		source.LastError = ""
		source.LastSync = nil
	}
	if req.Active != nil {
		source.Active = *req.Active
	}
	if err := s.DB.UpdateSource(ctx, source); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to update calendar source", err)
	}
	return source, nil
}

// DeleteSource drops the feed and all blocks it imported (FK cascade).
func (s *Service) DeleteSource(ctx context.Context, id string) error {
	affected, err := s.DB.DeleteSource(ctx, id)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to delete calendar source", err)
	}
	if affected == 0 {
		return errs.New(errs.NotFound, "calendar source not found")
	}
	s.Logger.LogSync(id, "Source deleted, imported blocks cascaded")
	return nil
}

// ---------------- SYNC ----------------

// SyncSource runs one fetch-parse-replace cycle for a single source. On
// any fetch or parse failure the previously imported blocks are left in
// place, so a flaky feed degrades to stale data rather than open dates.
func (s *Service) SyncSource(ctx context.Context, id string) (*models.SyncResult, error) {
	source, err := s.DB.GetSource(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "calendar source not found", err)
	}
	if !source.Active {
		return nil, errs.New(errs.Validation, "calendar source is disabled")
	}

	acquired, err := s.Lock.AcquireSourceLock(source.ID, sourceLockTTL)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to acquire sync lock", err)
	}
	if !acquired {
		return nil, errs.New(errs.Conflict, "a sync for this source is already running")
	}
	defer func() {
		if err := s.Lock.ReleaseSourceLock(source.ID); err != nil {
			s.Logger.Warn("SYNC", fmt.Sprintf("Failed to release lock for source %s: %v", source.ID, err))
		}
	}()

	result, syncErr := s.runSync(ctx, source)
	if syncErr != nil {
		s.recordOutcome(ctx, source, syncErr)
		return nil, syncErr
	}
	s.recordOutcome(ctx, source, nil)
	s.publishSynced(source, result)
	return result, nil
}

func (s *Service) runSync(ctx context.Context, source *models.CalendarSource) (*models.SyncResult, error) {
	raw, err := s.Fetcher.Fetch(source.URL)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, "failed to fetch calendar feed", err)
	}

	events, err := ParseICal(raw)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, "failed to parse calendar feed", err)
	}

	today := models.Today()
	blocks := make([]*models.ManualBlock, 0, len(events))
	for _, event := range events {
		// DTEND is exclusive; the stored block range is inclusive.
		last := event.End.AddDays(-1)
		if last.Before(event.Start) {
			continue
		}
		if last.Before(today) {
			continue
		}
		blocks = append(blocks, &models.ManualBlock{
			ID:        uuid.NewString(),
			StartDate: event.Start,
			EndDate:   last,
			Reason:    event.Summary,
			SourceID:  source.ID,
			EventUID:  event.UID,
			CreatedAt: time.Now(),
		})
	}

	if err := s.DB.ReplaceSourceBlocks(ctx, source.ID, blocks); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to store imported blocks", err)
	}

	s.Logger.LogSync(source.ID, fmt.Sprintf("Synced %s: %d events, %d future blocks", source.Platform, len(events), len(blocks)))
	return &models.SyncResult{
		SourceID:    source.ID,
		Platform:    source.Platform,
		EventsFound: len(events),
		Blocked:     len(blocks),
		SyncedAt:    time.Now(),
	}, nil
}

func (s *Service) recordOutcome(ctx context.Context, source *models.CalendarSource, syncErr error) {
	now := time.Now()
	source.LastSync = &now
	if syncErr != nil {
		source.SyncState = models.SyncError
		source.LastError = syncErr.Error()
	} else {
		source.SyncState = models.SyncSuccess
		source.LastError = ""
	}
	if err := s.DB.UpdateSource(ctx, source); err != nil {
		s.Logger.Error("SYNC", fmt.Sprintf("Failed to record sync outcome for %s: %v", source.ID, err))
	}
}

// SyncAll walks every active source. One bad feed does not stop the
// rest; failures come back inside the per-source results.
func (s *Service) SyncAll(ctx context.Context) ([]models.SyncResult, error) {
	sources, err := s.DB.ListSources(ctx, true)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list calendar sources", err)
	}

	results := make([]models.SyncResult, 0, len(sources))
	for _, source := range sources {
		res, err := s.SyncSource(ctx, source.ID)
		if err != nil {
			s.Logger.Error("SYNC", fmt.Sprintf("Sync failed for %s (%s): %v", source.Platform, source.ID, err))
			results = append(results, models.SyncResult{
				SourceID: source.ID,
				Platform: source.Platform,
				SyncedAt: time.Now(),
				Err:      err,
			})
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

func (s *Service) publishSynced(source *models.CalendarSource, result *models.SyncResult) {
	if s.Producer == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.Producer.Publish(s.Topics.CalendarSynced, source.ID, payload); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish sync event for %s: %v", source.ID, err))
	}
}
