package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"staybook/internal/availability/db"
	"staybook/internal/config"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CountOverlappingReservations(ctx context.Context, checkIn, checkOut models.Date) (int, error)
	CountOverlappingBlocks(ctx context.Context, checkIn, checkOut models.Date) (int, error)
	ListBlocksWithPlatform(ctx context.Context) ([]db.BlockWithPlatform, error)
	GetBlockByID(ctx context.Context, id string) (*models.ManualBlock, error)
	GetBlockCovering(ctx context.Context, day models.Date) (*models.ManualBlock, error)
	CreateBlock(ctx context.Context, block *models.ManualBlock) error
	DeleteBlock(ctx context.Context, id string) (int64, error)
	ReplaceBlock(ctx context.Context, oldID string, replacements []*models.ManualBlock) error
}

// Service answers "is this range free?" and owns the manual block editor.
type Service struct {
	DB       DBLayer
	Property config.PropertyConfig
	Logger   *logger.Logger
}

func NewService(dbLayer DBLayer, property config.PropertyConfig, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Property: property, Logger: log}
}

// Result is the diagnostic outcome of an availability check. Counts only —
// guest details never leave the ledger through this path.
type Result struct {
	Available               bool `json:"available"`
	ConflictingReservations int  `json:"conflicting_reservations"`
	ConflictingBlocks       int  `json:"conflicting_blocks"`
}

// ValidateRange enforces date ordering and the booking horizon before any
// query executes. Shared with the reservation ledger.
func (s *Service) ValidateRange(checkIn, checkOut models.Date) error {
	if !checkIn.Before(checkOut) {
		return errs.New(errs.Validation, "check-out must be after check-in")
	}
	today := models.Today()
	if checkIn.Before(today) {
		return errs.New(errs.Validation, "check-in date is in the past")
	}
	horizon := today.AddMonths(s.Property.HorizonMonths)
	if checkOut.After(horizon) {
		return errs.Newf(errs.Validation, "bookings are limited to %d months ahead", s.Property.HorizonMonths)
	}
	return nil
}

// CheckAvailability reports whether [checkIn, checkOut) is free of
// hold/confirmed reservations and manual blocks.
func (s *Service) CheckAvailability(ctx context.Context, checkIn, checkOut models.Date) (*Result, error) {
	if err := s.ValidateRange(checkIn, checkOut); err != nil {
		return nil, err
	}

	reservations, err := s.DB.CountOverlappingReservations(ctx, checkIn, checkOut)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "availability check failed", err)
	}
	blocks, err := s.DB.CountOverlappingBlocks(ctx, checkIn, checkOut)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "availability check failed", err)
	}

	return &Result{
		Available:               reservations == 0 && blocks == 0,
		ConflictingReservations: reservations,
		ConflictingBlocks:       blocks,
	}, nil
}

// recognizable iCal summaries that platforms emit for busy days.
var genericBusySummaries = map[string]bool{
	"":                       true,
	"reserved":               true,
	"not available":          true,
	"blocked":                true,
	"unavailable":            true,
	"closed - not available": true,
	"airbnb (not available)": true,
}

// ListBlockedRanges returns every manual block with a display label. For
// ingestion-sourced blocks whose raw summary is a recognizable busy marker,
// the label collapses to the platform name.
func (s *Service) ListBlockedRanges(ctx context.Context) ([]models.BlockedRange, error) {
	blocks, err := s.DB.ListBlocksWithPlatform(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list blocked ranges", err)
	}

	ranges := make([]models.BlockedRange, 0, len(blocks))
	for _, b := range blocks {
		ranges = append(ranges, models.BlockedRange{
			StartDate: b.StartDate,
			EndDate:   b.EndDate,
			Label:     blockLabel(b),
			Imported:  b.SourceID != "",
		})
	}
	return ranges, nil
}

func blockLabel(b db.BlockWithPlatform) string {
	if b.SourceID != "" && b.Platform != "" {
		reason := strings.ToLower(strings.TrimSpace(b.Reason))
		if genericBusySummaries[reason] || strings.Contains(reason, strings.ToLower(b.Platform)) {
			return b.Platform
		}
	}
	if b.Reason == "" {
		return "Blocked"
	}
	return b.Reason
}

// ---------------- BLOCK EDITOR ----------------

// BlockRange creates one manual block over the inclusive [from, to]
// selection. Overlapping manual blocks are tolerated: only reservations
// carry a hard no-overlap constraint.
func (s *Service) BlockRange(ctx context.Context, from, to models.Date, reason string) (*models.ManualBlock, error) {
	if to.Before(from) {
		return nil, errs.New(errs.Validation, "end date must not be before start date")
	}

	block := &models.ManualBlock{
		ID:        uuid.NewString(),
		StartDate: from,
		EndDate:   to,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := s.DB.CreateBlock(ctx, block); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to create block", err)
	}

	s.Logger.LogDatabase("INSERT", "manual_blocks", fmt.Sprintf("blocked %s..%s (%s)", from, to, block.ID))
	return block, nil
}

// ToggleDay flips the blocked state of a single day. Toggle-off destroys
// the covering block's identity and issues new IDs for the remainder(s);
// callers must not hold block references across this call.
func (s *Service) ToggleDay(ctx context.Context, day models.Date, reason string) (blocked bool, err error) {
	existing, err := s.DB.GetBlockCovering(ctx, day)
	if err != nil {
		return false, errs.Wrap(errs.Internal, "failed to look up block", err)
	}

	if existing == nil {
		if _, err := s.BlockRange(ctx, day, day, reason); err != nil {
			return false, err
		}
		return true, nil
	}

	remainders := splitBlock(existing, day)
	if err := s.DB.ReplaceBlock(ctx, existing.ID, remainders); err != nil {
		return false, errs.Wrap(errs.Internal, "failed to unblock day", err)
	}

	s.Logger.LogDatabase("REPLACE", "manual_blocks",
		fmt.Sprintf("unblocked %s: block %s replaced by %d remainder(s)", day, existing.ID, len(remainders)))
	return false, nil
}

// splitBlock computes the remainder blocks after removing day from an
// inclusive [S,E] block: none for a single-day block, one shrunk block when
// day is an endpoint, two when day is strictly interior. Remainders inherit
// reason and origin tags.
func splitBlock(block *models.ManualBlock, day models.Date) []*models.ManualBlock {
	remainder := func(start, end models.Date) *models.ManualBlock {
		return &models.ManualBlock{
			ID:        uuid.NewString(),
			StartDate: start,
			EndDate:   end,
			Reason:    block.Reason,
			SourceID:  block.SourceID,
			EventUID:  block.EventUID,
			CreatedAt: time.Now(),
		}
	}

	switch {
	case block.StartDate.Equal(block.EndDate):
		return nil
	case day.Equal(block.StartDate):
		return []*models.ManualBlock{remainder(block.StartDate.AddDays(1), block.EndDate)}
	case day.Equal(block.EndDate):
		return []*models.ManualBlock{remainder(block.StartDate, block.EndDate.AddDays(-1))}
	default:
		return []*models.ManualBlock{
			remainder(block.StartDate, day.AddDays(-1)),
			remainder(day.AddDays(1), block.EndDate),
		}
	}
}

// DeleteBlock removes an owner-created block outright.
func (s *Service) DeleteBlock(ctx context.Context, id string) error {
	affected, err := s.DB.DeleteBlock(ctx, id)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to delete block", err)
	}
	if affected == 0 {
		return errs.New(errs.NotFound, "block not found")
	}
	return nil
}
