// Command migrate applies or rolls back the schema migrations, with an
// optional dev seed. The server applies pending migrations on startup;
// this tool exists for rollbacks and local setup.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"staybook/internal/config"
	"staybook/internal/database/migrations"
	"staybook/internal/models"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	seed := flag.Bool("seed", false, "insert sample development data after migrating")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(db, migrations.DefaultOptions())
	if err := runner.Initialize(); err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}

	if *down {
		log.Println("Rolling back one migration...")
		if err := runner.Rollback(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("✅ Done.")
		return
	}

	log.Println("Applying migrations...")
	if err := runner.RunMigrations(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *seed {
		log.Println("Seeding sample data...")
		if err := seedData(context.Background(), db); err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
	}
	log.Println("✅ Done.")
}

// seedData inserts a handful of rate overrides and a manual block so a
// fresh environment has something on the calendar.
func seedData(ctx context.Context, db *bun.DB) error {
	today := models.Today()

	weekend := 275.0
	overrides := []*models.RateOverride{
		{Date: today.AddDays(5), Price: &weekend},
		{Date: today.AddDays(6), Price: &weekend},
	}
	for _, o := range overrides {
		o.UpdatedAt = time.Now()
		if _, err := db.NewInsert().Model(o).On("CONFLICT (date) DO NOTHING").Exec(ctx); err != nil {
			return err
		}
	}

	block := &models.ManualBlock{
		ID:        uuid.NewString(),
		StartDate: today.AddDays(20),
		EndDate:   today.AddDays(22),
		Reason:    "maintenance",
		CreatedAt: time.Now(),
	}
	_, err := db.NewInsert().Model(block).Exec(ctx)
	return err
}
