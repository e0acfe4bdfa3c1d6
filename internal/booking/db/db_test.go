package db_test

import (
	"context"
	"database/sql"
	"math/rand"
	"sync"
	"testing"
	"time"

	"staybook/internal/booking/db"
	"staybook/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// A :memory: database exists per connection; one connection keeps every
	// transaction, including concurrent ones, on the same database.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Reservation)(nil),
		(*models.ManualBlock)(nil),
		(*models.DamageCharge)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func testReservation(checkIn, checkOut models.Date) *models.Reservation {
	return &models.Reservation{
		ID:            uuid.NewString(),
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		GuestName:     "Jamie Doe",
		GuestEmail:    "jamie@example.com",
		Guests:        2,
		Subtotal:      400,
		CleaningFee:   75,
		Total:         475,
		Status:        models.StatusHold,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func d(s string) models.Date {
	parsed, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestCreateIfAvailableAndGet(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := testReservation(d("2026-03-10"), d("2026-03-12"))
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, res))

	fetched, err := bookingDB.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.GuestEmail, fetched.GuestEmail)
	assert.True(t, fetched.CheckIn.Equal(d("2026-03-10")))
	assert.True(t, fetched.CheckOut.Equal(d("2026-03-12")))
	assert.Equal(t, models.StatusHold, fetched.Status)
}

func TestCreateIfAvailableRejectsOverlap(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, bookingDB.CreateIfAvailable(ctx, testReservation(d("2026-03-10"), d("2026-03-12"))))

	err := bookingDB.CreateIfAvailable(ctx, testReservation(d("2026-03-11"), d("2026-03-14")))
	assert.ErrorIs(t, err, db.ErrConflict)

	// Back to back stays share no night.
	err = bookingDB.CreateIfAvailable(ctx, testReservation(d("2026-03-12"), d("2026-03-14")))
	assert.NoError(t, err)
}

func TestCreateIfAvailableIgnoresCancelled(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := testReservation(d("2026-03-10"), d("2026-03-12"))
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, res))

	res.Status = models.StatusCancelled
	require.NoError(t, bookingDB.Update(ctx, res))

	// The cancelled stay no longer blocks its dates.
	err := bookingDB.CreateIfAvailable(ctx, testReservation(d("2026-03-10"), d("2026-03-12")))
	assert.NoError(t, err)
}

func TestCreateIfAvailableRejectsBlockedDates(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// Inclusive block on Mar 11-12.
	block := &models.ManualBlock{
		ID:        uuid.NewString(),
		StartDate: d("2026-03-11"),
		EndDate:   d("2026-03-12"),
		CreatedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(block).Exec(ctx)
	require.NoError(t, err)

	err = bookingDB.CreateIfAvailable(ctx, testReservation(d("2026-03-10"), d("2026-03-12")))
	assert.ErrorIs(t, err, db.ErrConflict)

	// Checking in the day after the block's inclusive end is fine.
	err = bookingDB.CreateIfAvailable(ctx, testReservation(d("2026-03-13"), d("2026-03-15")))
	assert.NoError(t, err)
}

func TestUpdatePersistsStatusFields(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := testReservation(d("2026-03-10"), d("2026-03-12"))
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, res))

	res.Status = models.StatusConfirmed
	res.PaymentStatus = models.PaymentSucceeded
	res.PaymentIntentID = "pi_123"
	require.NoError(t, bookingDB.Update(ctx, res))

	fetched, err := bookingDB.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, fetched.Status)
	assert.Equal(t, models.PaymentSucceeded, fetched.PaymentStatus)
	assert.Equal(t, "pi_123", fetched.PaymentIntentID)
}

func TestListActiveExcludesFinishedStays(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	hold := testReservation(d("2026-03-10"), d("2026-03-12"))
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, hold))

	done := testReservation(d("2026-04-10"), d("2026-04-12"))
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, done))
	done.Status = models.StatusCompleted
	require.NoError(t, bookingDB.Update(ctx, done))

	active, err := bookingDB.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, hold.ID, active[0].ID)
}

func TestExpireHoldsIsIdempotent(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	stale := testReservation(d("2026-03-10"), d("2026-03-12"))
	stale.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, stale))

	fresh := testReservation(d("2026-04-10"), d("2026-04-12"))
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, fresh))

	paid := testReservation(d("2026-05-10"), d("2026-05-12"))
	paid.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, paid))
	paid.PaymentStatus = models.PaymentSucceeded
	require.NoError(t, bookingDB.Update(ctx, paid))

	cutoff := time.Now().Add(-10 * time.Minute)
	expired, err := bookingDB.ExpireHolds(ctx, cutoff, "hold expired")
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired, "only the stale unpaid hold expires")

	fetched, err := bookingDB.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, fetched.Status)
	assert.Equal(t, "hold expired", fetched.CancelReason)

	// Re-running the sweep touches nothing.
	expired, err = bookingDB.ExpireHolds(ctx, cutoff, "hold expired")
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestDamageCharges(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := testReservation(d("2026-03-10"), d("2026-03-12"))
	require.NoError(t, bookingDB.CreateIfAvailable(ctx, res))

	charge := &models.DamageCharge{
		ID:            "chg_test_1",
		ReservationID: res.ID,
		Amount:        120,
		Description:   "broken lamp",
		PaymentRef:    "pi_damage",
		CreatedAt:     time.Now(),
	}
	require.NoError(t, bookingDB.CreateDamageCharge(ctx, charge))

	charges, err := bookingDB.ListDamageCharges(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, 120.0, charges[0].Amount)

	other, err := bookingDB.ListDamageCharges(ctx, "some-other-id")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCreateIfAvailableConcurrentOverlapAdmitsOne(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// Both claim the night of Jun 2.
	attempts := [][2]models.Date{
		{d("2026-06-01"), d("2026-06-03")},
		{d("2026-06-02"), d("2026-06-05")},
	}

	results := make([]error, len(attempts))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, span := range attempts {
		wg.Add(1)
		go func(i int, span [2]models.Date) {
			defer wg.Done()
			<-start
			results[i] = bookingDB.CreateIfAvailable(ctx, testReservation(span[0], span[1]))
		}(i, span)
	}
	close(start)
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, db.ErrConflict)
		conflicts++
	}
	assert.Equal(t, 1, successes, "exactly one racing booking wins the night")
	assert.Equal(t, 1, conflicts)

	stored, err := bookingDB.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCreateIfAvailableConcurrentRandomRangesNeverDoubleBook(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// Random 1-4 night stays inside a ten-day window, all fired at once.
	// Whichever subset wins, the stored set must be pairwise disjoint.
	rng := rand.New(rand.NewSource(1))
	base := d("2026-06-01")
	attempts := make([][2]models.Date, 20)
	for i := range attempts {
		checkIn := base.AddDays(rng.Intn(10))
		attempts[i] = [2]models.Date{checkIn, checkIn.AddDays(1 + rng.Intn(4))}
	}

	results := make([]error, len(attempts))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, span := range attempts {
		wg.Add(1)
		go func(i int, span [2]models.Date) {
			defer wg.Done()
			<-start
			results[i] = bookingDB.CreateIfAvailable(ctx, testReservation(span[0], span[1]))
		}(i, span)
	}
	close(start)
	wg.Wait()

	var successes int
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, db.ErrConflict)
		}
	}
	assert.Greater(t, successes, 0)

	stored, err := bookingDB.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, stored, successes)
	for i := range stored {
		for j := i + 1; j < len(stored); j++ {
			assert.False(t,
				models.Overlaps(stored[i].CheckIn, stored[i].CheckOut, stored[j].CheckIn, stored[j].CheckOut),
				"stored stays %s..%s and %s..%s overlap",
				stored[i].CheckIn, stored[i].CheckOut, stored[j].CheckIn, stored[j].CheckOut)
		}
	}
}
