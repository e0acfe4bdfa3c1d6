package analytics

import (
	"context"

	"staybook/internal/errs"
	"staybook/internal/models"

	"github.com/uptrace/bun"
)

// Service computes occupancy and revenue rollups straight off the
// reservation ledger. Aggregation happens in Go rather than SQL so the
// summaries stay identical across the postgres and sqlite dialects.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// OccupancySummary reports how the nights inside [from, to) are used.
type OccupancySummary struct {
	From          models.Date `json:"from"`
	To            models.Date `json:"to"`
	TotalNights   int         `json:"total_nights"`
	BookedNights  int         `json:"booked_nights"`
	BlockedNights int         `json:"blocked_nights"`
	OpenNights    int         `json:"open_nights"`
	OccupancyRate float64     `json:"occupancy_rate"`
}

// MonthlyRevenue contains revenue metrics for a single month, keyed by
// the reservation's check-in month.
type MonthlyRevenue struct {
	Month        string  `json:"month"`
	Revenue      float64 `json:"revenue"`
	Reservations int     `json:"reservations"`
	Nights       int     `json:"nights"`
}

// RevenueSummary aggregates confirmed and completed reservations.
type RevenueSummary struct {
	TotalRevenue   float64          `json:"total_revenue"`
	TotalNights    int              `json:"total_nights"`
	Reservations   int              `json:"reservations"`
	AvgNightlyRate float64          `json:"avg_nightly_rate"`
	AvgStayNights  float64          `json:"avg_stay_nights"`
	RevenueByMonth []MonthlyRevenue `json:"revenue_by_month"`
	RefundedAmount float64          `json:"refunded_amount"`
	CancelledCount int              `json:"cancelled_count"`
}

func (s *Service) Occupancy(ctx context.Context, from, to models.Date) (*OccupancySummary, error) {
	if !from.Before(to) {
		return nil, errs.New(errs.Validation, "from must be before to")
	}

	var reservations []models.Reservation
	err := s.db.NewSelect().
		Model(&reservations).
		Where("status IN (?)", bun.In([]models.ReservationStatus{models.StatusHold, models.StatusConfirmed, models.StatusCompleted})).
		Where("check_in < ?", to).
		Where("check_out > ?", from).
		Scan(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load reservations", err)
	}

	var blocks []models.ManualBlock
	err = s.db.NewSelect().
		Model(&blocks).
		Where("start_date < ?", to).
		Where("end_date >= ?", from).
		Scan(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load blocks", err)
	}

	booked := make(map[string]bool)
	for _, res := range reservations {
		for _, night := range clampNights(res.CheckIn, res.CheckOut, from, to) {
			booked[night.String()] = true
		}
	}
	// Blocked nights that are also booked count as booked.
	blocked := make(map[string]bool)
	for _, block := range blocks {
		for _, night := range clampNights(block.StartDate, block.EndDate.AddDays(1), from, to) {
			key := night.String()
			if !booked[key] {
				blocked[key] = true
			}
		}
	}

	total := len(models.DaysBetween(from, to))
	summary := &OccupancySummary{
		From:          from,
		To:            to,
		TotalNights:   total,
		BookedNights:  len(booked),
		BlockedNights: len(blocked),
		OpenNights:    total - len(booked) - len(blocked),
	}
	if total > 0 {
		summary.OccupancyRate = float64(len(booked)) / float64(total)
	}
	return summary, nil
}

// clampNights lists the nights of [start, end) that fall inside the
// [from, to) window.
func clampNights(start, end, from, to models.Date) []models.Date {
	if start.Before(from) {
		start = from
	}
	if to.Before(end) {
		end = to
	}
	var nights []models.Date
	for d := start; d.Before(end); d = d.AddDays(1) {
		nights = append(nights, d)
	}
	return nights
}

func (s *Service) Revenue(ctx context.Context, from, to models.Date) (*RevenueSummary, error) {
	if !from.Before(to) {
		return nil, errs.New(errs.Validation, "from must be before to")
	}

	var reservations []models.Reservation
	err := s.db.NewSelect().
		Model(&reservations).
		Where("check_in >= ?", from).
		Where("check_in < ?", to).
		Scan(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load reservations", err)
	}

	summary := &RevenueSummary{}
	byMonth := make(map[string]*MonthlyRevenue)
	var monthOrder []string

	for _, res := range reservations {
		if res.Status == models.StatusCancelled {
			summary.CancelledCount++
			if res.RefundAmount != nil {
				summary.RefundedAmount += *res.RefundAmount
			}
			continue
		}
		if res.PaymentStatus != models.PaymentSucceeded {
			continue
		}

		nights := res.Nights()
		summary.TotalRevenue += res.Total
		summary.TotalNights += nights
		summary.Reservations++

		month := res.CheckIn.Time().Format("2006-01")
		entry, ok := byMonth[month]
		if !ok {
			entry = &MonthlyRevenue{Month: month}
			byMonth[month] = entry
			monthOrder = append(monthOrder, month)
		}
		entry.Revenue += res.Total
		entry.Reservations++
		entry.Nights += nights
	}

	if summary.TotalNights > 0 {
		summary.AvgNightlyRate = summary.TotalRevenue / float64(summary.TotalNights)
	}
	if summary.Reservations > 0 {
		summary.AvgStayNights = float64(summary.TotalNights) / float64(summary.Reservations)
	}

	summary.RevenueByMonth = make([]MonthlyRevenue, 0, len(monthOrder))
	for _, month := range monthOrder {
		summary.RevenueByMonth = append(summary.RevenueByMonth, *byMonth[month])
	}
	return summary, nil
}

// UpcomingCheckIns lists active reservations arriving within the next
// given number of days, soonest first.
func (s *Service) UpcomingCheckIns(ctx context.Context, days int) ([]models.Reservation, error) {
	if days <= 0 {
		days = 7
	}
	today := models.Today()
	cutoff := today.AddDays(days)

	var reservations []models.Reservation
	err := s.db.NewSelect().
		Model(&reservations).
		Where("status IN (?)", bun.In([]models.ReservationStatus{models.StatusHold, models.StatusConfirmed})).
		Where("check_in >= ?", today).
		Where("check_in < ?", cutoff).
		Order("check_in ASC").
		Scan(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load upcoming check-ins", err)
	}
	return reservations, nil
}
