// Command seed populates the global database with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"arbor/internal/config"
	"arbor/internal/database"
	"arbor/internal/seed"
)

func main() {
	numProfiles := flag.Int("profiles", 25, "Number of profiles to create")
	numRequests := flag.Int("requests", 10, "Number of tenant requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d profiles, %d tenant requests, clean=%v\n", *numProfiles, *numRequests, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db)
	if err := s.Run(context.Background(), seed.Options{
		NumProfiles: *numProfiles,
		NumRequests: *numRequests,
		ShouldClean: *shouldClean,
	}); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! The review queue is populated with demo requests.")
}
