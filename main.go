package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"staybook/internal/analytics"
	analytics_api "staybook/internal/analytics/api"
	"staybook/internal/auth"
	"staybook/internal/availability"
	"staybook/internal/availability/availability_api"
	availability_db "staybook/internal/availability/db"
	"staybook/internal/booking"
	"staybook/internal/booking/booking_api"
	booking_db "staybook/internal/booking/db"
	rediswrap "staybook/internal/booking/redis"
	"staybook/internal/calendars"
	"staybook/internal/calendars/calendar_api"
	calendar_db "staybook/internal/calendars/db"
	"staybook/internal/config"
	"staybook/internal/database/migrations"
	"staybook/internal/kafka"
	"staybook/internal/logger"
	"staybook/internal/qr"
	"staybook/internal/rates"
	rates_db "staybook/internal/rates/db"
	"staybook/internal/rates/rates_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func runMigrations(bunDB *bun.DB, log *logger.Logger) {
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.Initialize(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize migrations: %v", err))
	}
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to run migrations: %v", err))
	}
	log.Info("DATABASE", "Migrations applied successfully")
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Staybook initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runMigrations(bunDB, log)

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))

		requiredTopics := []string{
			cfg.Kafka.Topics.ReservationCreated,
			cfg.Kafka.Topics.ReservationConfirmed,
			cfg.Kafka.Topics.ReservationCancelled,
			cfg.Kafka.Topics.DamageCharged,
			cfg.Kafka.Topics.CalendarSynced,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, notification events will not be published")
	}

	payments, err := booking.NewStripePayments(cfg.Stripe, log)
	if err != nil {
		log.Fatal("PAYMENT", fmt.Sprintf("Failed to initialize Stripe: %v", err))
	}

	nightLocks := rediswrap.NewRedis(redisClient, cfg.Property.HoldTimeout)
	qrGen := qr.NewGenerator(cfg.Auth.QRSecret)

	availabilityService := availability.NewService(&availability_db.DB{Bun: bunDB}, cfg.Property, log)
	rateResolver := rates.NewResolver(&rates_db.DB{Bun: bunDB}, cfg.Property, log)

	bookingDB := &booking_db.DB{Bun: bunDB}
	// A typed nil *kafka.Producer would not compare equal to nil inside
	// the services, so the interface stays nil when Kafka is disabled.
	var notify booking.Publisher
	if producer != nil {
		notify = producer
	}
	bookingService := booking.NewService(
		bookingDB,
		nightLocks,
		rateResolver,
		availabilityService,
		payments,
		notify,
		qrGen,
		cfg.Property,
		cfg.Kafka.Topics,
		log,
	)

	var syncNotify calendars.Publisher
	if producer != nil {
		syncNotify = producer
	}
	calendarService := &calendars.Service{
		DB:       &calendar_db.DB{Bun: bunDB},
		Fetcher:  calendars.NewFetcher(cfg.Calendar),
		Lock:     nightLocks,
		Producer: syncNotify,
		Topics:   cfg.Kafka.Topics,
		Logger:   log,
	}
	exporter := &calendars.Exporter{
		Reservations: bookingDB,
		DB:           &calendar_db.DB{Bun: bunDB},
		FeedDomain:   cfg.Property.FeedDomain,
	}

	analyticsService := analytics.NewService(bunDB)

	bookingHandler := booking_api.NewHandler(bookingService, log, cfg.Stripe.WebhookSecret)
	analyticsHandler := analytics_api.NewHandler(analyticsService, log)
	availabilityHandler := availability_api.NewHandler(availabilityService, log)
	ratesHandler := rates_api.NewHandler(rateResolver, log)
	calendarHandler := calendar_api.NewHandler(calendarService, exporter, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Get("/api/availability", availabilityHandler.CheckAvailability)
	r.Get("/api/calendar/blocked", availabilityHandler.ListBlockedRanges)
	r.Get("/api/quote", ratesHandler.Quote)
	r.Get("/calendar.ics", calendarHandler.ExportFeed)
	r.Post("/webhook/stripe", bookingHandler.StripeWebhook)

	r.Route("/api/reservations", func(r chi.Router) {
		r.Post("/", bookingHandler.CreateReservation)
		r.Get("/{reservationId}", bookingHandler.GetGuestReservation)
		r.Post("/{reservationId}/cancel", bookingHandler.CancelReservation)
		r.Get("/{reservationId}/checkin-qr", bookingHandler.CheckInQR)
	})
	log.Info("ROUTER", "Public routes registered")

	// --- Admin Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.AdminMiddleware(cfg.Auth.JWTSecret))
		log.Info("AUTH", "JWT middleware applied to admin routes")

		r.Route("/api/admin", func(r chi.Router) {
			r.Route("/reservations", func(r chi.Router) {
				r.Get("/", bookingHandler.ListReservations)
				r.Get("/{reservationId}", bookingHandler.GetReservation)
				r.Post("/{reservationId}/cancel", bookingHandler.AdminCancelReservation)
				r.Post("/{reservationId}/complete", bookingHandler.CompleteReservation)
				r.Post("/{reservationId}/damages", bookingHandler.ChargeDamage)
				r.Get("/{reservationId}/damages", bookingHandler.ListDamageCharges)
			})

			r.Route("/blocks", func(r chi.Router) {
				r.Post("/", availabilityHandler.BlockRange)
				r.Post("/toggle", availabilityHandler.ToggleDay)
				r.Delete("/{blockId}", availabilityHandler.DeleteBlock)
			})

			r.Route("/rates", func(r chi.Router) {
				r.Get("/", ratesHandler.ListOverrides)
				r.Put("/", ratesHandler.SetOverrides)
				r.Delete("/", ratesHandler.ClearOverrides)
			})

			r.Route("/calendar-sources", func(r chi.Router) {
				r.Post("/", calendarHandler.CreateSource)
				r.Get("/", calendarHandler.ListSources)
				r.Get("/{sourceId}", calendarHandler.GetSource)
				r.Put("/{sourceId}", calendarHandler.UpdateSource)
				r.Delete("/{sourceId}", calendarHandler.DeleteSource)
				r.Post("/{sourceId}/sync", calendarHandler.SyncSource)
			})

			analyticsHandler.RegisterRoutes(r)
		})
		log.Info("ROUTER", "Admin routes registered under /api/admin")
	})

	// --- Scheduler Tasks ---
	r.Group(func(r chi.Router) {
		r.Use(auth.TaskKeyMiddleware(cfg.Auth.TaskKey))

		r.Route("/internal/tasks", func(r chi.Router) {
			r.Post("/expire-holds", bookingHandler.ExpireHolds)
			r.Post("/sync-calendars", calendarHandler.SyncAll)
		})
		log.Info("ROUTER", "Task routes registered under /internal/tasks")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Staybook running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Staybook shutdown complete")
	}
}
