package rates

import (
	"context"
	"fmt"
	"time"

	"staybook/internal/config"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"
)

type DBLayer interface {
	GetOverridesInRange(ctx context.Context, from, to models.Date) ([]models.RateOverride, error)
	GetOverride(ctx context.Context, date models.Date) (*models.RateOverride, error)
	UpsertOverride(ctx context.Context, override *models.RateOverride) error
	DeleteOverride(ctx context.Context, date models.Date) error
}

// Resolver layers sparse per-date overrides over the default rate card.
type Resolver struct {
	DB       DBLayer
	Property config.PropertyConfig
	Logger   *logger.Logger
}

func NewResolver(dbLayer DBLayer, property config.PropertyConfig, log *logger.Logger) *Resolver {
	return &Resolver{DB: dbLayer, Property: property, Logger: log}
}

// Quote computes the nightly price sequence and effective minimum stay for
// [checkIn, checkOut). Each night resolves to its override price when set,
// else the base price; the minimum stay for the whole range is the maximum
// of the default and every override minimum among the nights.
func (r *Resolver) Quote(ctx context.Context, checkIn, checkOut models.Date) (*models.Quote, error) {
	if !checkIn.Before(checkOut) {
		return nil, errs.New(errs.Validation, "check-out must be after check-in")
	}
	nights := checkIn.DaysUntil(checkOut)
	if nights > r.Property.MaxNights {
		return nil, errs.Newf(errs.Validation, "stays are limited to %d nights", r.Property.MaxNights)
	}

	overrides, err := r.DB.GetOverridesInRange(ctx, checkIn, checkOut)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to load rate overrides", err)
	}
	byDate := make(map[string]models.RateOverride, len(overrides))
	for _, o := range overrides {
		byDate[o.Date.String()] = o
	}

	quote := &models.Quote{
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Nights:      nights,
		NightPrices: make([]models.NightPrice, 0, nights),
		CleaningFee: r.Property.CleaningFee,
		ServiceFee:  0, // extensible line item, currently always zero
		MinNights:   r.Property.DefaultMinNights,
	}

	for _, night := range models.DaysBetween(checkIn, checkOut) {
		price := r.Property.BasePrice
		custom := false
		if o, ok := byDate[night.String()]; ok {
			if o.Price != nil {
				price = *o.Price
				custom = true
			}
			if o.MinNights != nil && *o.MinNights > quote.MinNights {
				quote.MinNights = *o.MinNights
			}
		}
		quote.NightPrices = append(quote.NightPrices, models.NightPrice{Date: night, Price: price, Override: custom})
		quote.Subtotal += price
		if custom {
			quote.HasCustomRate = true
		}
	}

	quote.Total = quote.Subtotal + quote.CleaningFee + quote.ServiceFee
	quote.AvgNightly = quote.Subtotal / float64(nights)
	return quote, nil
}

// SetOverrides upserts price and/or minimum-stay for each date in the
// batch. Fields absent from the request keep their stored value.
func (r *Resolver) SetOverrides(ctx context.Context, dates []models.Date, price *float64, minNights *int) error {
	if price == nil && minNights == nil {
		return errs.New(errs.Validation, "nothing to set: provide price or min_nights")
	}

	for _, date := range dates {
		existing, err := r.DB.GetOverride(ctx, date)
		if err != nil {
			return errs.Wrap(errs.Internal, "failed to load rate override", err)
		}

		override := models.RateOverride{Date: date, UpdatedAt: time.Now()}
		if existing != nil {
			override.Price = existing.Price
			override.MinNights = existing.MinNights
		}
		if price != nil {
			override.Price = price
		}
		if minNights != nil {
			override.MinNights = minNights
		}

		if err := r.DB.UpsertOverride(ctx, &override); err != nil {
			return errs.Wrap(errs.Internal, "failed to save rate override", err)
		}
	}

	r.Logger.LogDatabase("UPSERT", "rate_overrides", fmt.Sprintf("set overrides for %d date(s)", len(dates)))
	return nil
}

// ClearOverrides nulls the named field for each date; a row left with both
// fields null is deleted, never persisted empty.
func (r *Resolver) ClearOverrides(ctx context.Context, dates []models.Date, field models.OverrideField) error {
	for _, date := range dates {
		existing, err := r.DB.GetOverride(ctx, date)
		if err != nil {
			return errs.Wrap(errs.Internal, "failed to load rate override", err)
		}
		if existing == nil {
			continue
		}

		switch field {
		case models.FieldPrice:
			existing.Price = nil
		case models.FieldMinNights:
			existing.MinNights = nil
		default:
			return errs.Newf(errs.Validation, "unknown override field %q", field)
		}

		if existing.Empty() {
			if err := r.DB.DeleteOverride(ctx, date); err != nil {
				return errs.Wrap(errs.Internal, "failed to delete rate override", err)
			}
			continue
		}

		existing.UpdatedAt = time.Now()
		if err := r.DB.UpsertOverride(ctx, existing); err != nil {
			return errs.Wrap(errs.Internal, "failed to save rate override", err)
		}
	}

	r.Logger.LogDatabase("CLEAR", "rate_overrides", fmt.Sprintf("cleared %s for %d date(s)", field, len(dates)))
	return nil
}

// ListOverrides returns the overrides among [from, to) for admin display.
func (r *Resolver) ListOverrides(ctx context.Context, from, to models.Date) ([]models.RateOverride, error) {
	overrides, err := r.DB.GetOverridesInRange(ctx, from, to)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list rate overrides", err)
	}
	return overrides, nil
}
