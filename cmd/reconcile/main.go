// Command reconcile runs one identity reconciliation pass over all tenant
// branches and prints the per-branch report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"arbor/internal/config"
	"arbor/internal/database"
	"arbor/internal/provider"
	"arbor/internal/repository"
	"arbor/internal/service"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Report what would change without writing to any branch")
	tenants := flag.String("tenants", "", "Comma-separated tenant ids to reconcile (default: all)")
	flag.Parse()

	filter := service.ReconcileFilter{DryRun: *dryRun}
	if *tenants != "" {
		for _, part := range strings.Split(*tenants, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil {
				log.Fatalf("Invalid tenant id %q in -tenants", part)
			}
			filter.TenantIDs = append(filter.TenantIDs, uint(id))
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	connector := database.NewBranchConnector(cfg)
	defer func() {
		if err := connector.Close(); err != nil {
			log.Printf("error closing branch connections: %v", err)
		}
	}()

	branchAPI := provider.NewBranchAPI(cfg.PlatformAPIURL, cfg.PlatformAPIToken)
	requestRepo := repository.NewTenantRequestRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	branches := service.NewBranchService(branchAPI, connector, requestRepo, database.ExpectedBranchTables)
	reconciler := service.NewReconcileService(branches, connector, profileRepo, cfg.ReconcileWorkers)

	summary, err := reconciler.Run(context.Background(), filter)
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Fatalf("Failed to encode summary: %v", err)
	}
}
