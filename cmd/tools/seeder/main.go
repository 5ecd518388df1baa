package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/pricing"
	"github.com/noah-isme/backend-quote/internal/store"
)

func main() {
	var (
		catalogFile = flag.String("catalog", "", "YAML catalog file to upsert into catalog_products")
		tiersFile   = flag.String("tiers", "", "YAML profit tier file; the built-in schedule is used when empty")
		skipTiers   = flag.Bool("skip-tiers", false, "leave profit_tiers untouched")
		dryRun      = flag.Bool("dry-run", false, "parse inputs without writing to the database")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var products []catalog.Product
	if *catalogFile != "" {
		var err error
		products, err = catalog.FileSource{Path: *catalogFile}.LoadProducts(ctx)
		if err != nil {
			log.Fatalf("load catalog: %v", err)
		}
		if _, err := catalog.NewSnapshot(products); err != nil {
			log.Fatalf("validate catalog: %v", err)
		}
	}

	tiers := pricing.DefaultTiers()
	if *tiersFile != "" {
		var err error
		tiers, err = pricing.YAMLFile{Path: *tiersFile}.LoadTiers(ctx)
		if err != nil {
			log.Fatalf("load tiers: %v", err)
		}
	}
	if _, err := pricing.NewSchedule(tiers); err != nil {
		log.Fatalf("validate tiers: %v", err)
	}

	if *dryRun {
		log.Printf("dry run: %d products, %d tiers parsed", len(products), len(tiers))
		return
	}

	if err := store.Migrate(dbURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	db := store.NewPostgres(pool)
	if len(products) > 0 {
		if err := db.UpsertProducts(ctx, products); err != nil {
			log.Fatalf("seed products: %v", err)
		}
		log.Printf("seeded %d products", len(products))
	}
	if !*skipTiers {
		if err := db.ReplaceTiers(ctx, tiers); err != nil {
			log.Fatalf("seed tiers: %v", err)
		}
		log.Printf("seeded %d profit tiers", len(tiers))
	}
	log.Println("seeding completed")
}
