package service

import (
	"context"
	"sync"
	"time"

	"arbor/internal/middleware"
	"arbor/internal/models"
	"arbor/internal/repository"
)

// ReconcileFilter narrows one reconciliation run. An empty TenantIDs means
// every tenant branch; DryRun reports what would change without writing.
type ReconcileFilter struct {
	TenantIDs []uint `json:"tenant_ids,omitempty"`
	DryRun    bool   `json:"dry_run"`
}

// RowFailure records one profile row that could not be reconciled.
type RowFailure struct {
	ProfileID uint   `json:"profile_id"`
	Error     string `json:"error"`
}

// RowChange is the before/after audit of one overwritten branch row.
type RowChange struct {
	ProfileID uint                  `json:"profile_id"`
	Before    models.MirroredFields `json:"before"`
	After     models.MirroredFields `json:"after"`
}

// TenantReport is the per-branch outcome of one reconciliation run.
type TenantReport struct {
	Branch    string `json:"branch"`
	TenantID  uint   `json:"tenant_id"`
	Processed int    `json:"processed"`
	Written   int    `json:"written"`
	Skipped   int    `json:"skipped"`
	// MissingGlobal counts branch rows whose identity id has no global
	// counterpart. They are left untouched, never deleted.
	MissingGlobal int `json:"missing_global"`
	Failed        int `json:"failed"`
	// Error is set when the branch could not be processed at all, for
	// example an unreachable host. Row counts are zero in that case.
	Error    string       `json:"error,omitempty"`
	Failures []RowFailure `json:"failures,omitempty"`
	Changes  []RowChange  `json:"changes,omitempty"`
}

// ReconcileSummary aggregates a whole reconciliation run.
type ReconcileSummary struct {
	StartedAt     time.Time      `json:"started_at"`
	Duration      time.Duration  `json:"duration"`
	DryRun        bool           `json:"dry_run"`
	Branches      int            `json:"branches"`
	Processed     int            `json:"processed"`
	Written       int            `json:"written"`
	Skipped       int            `json:"skipped"`
	MissingGlobal int            `json:"missing_global"`
	Failed        int            `json:"failed"`
	Tenants       []TenantReport `json:"tenants"`
}

// branchLister enumerates provider-known branches.
type branchLister interface {
	ListBranches(ctx context.Context) ([]models.DatabaseBranch, error)
}

// profileOpener opens the profile store inside one branch.
type profileOpener interface {
	OpenProfiles(branch models.DatabaseBranch) (repository.ProfileRepository, error)
}

// ReconcileService copies the mirrored profile fields from the global
// database into every tenant branch. The copy is strictly one way and
// idempotent: rows already in sync are skipped, so back-to-back runs produce
// zero writes. Branch rows with no global counterpart are reported, never
// touched. One broken branch never stops the others.
type ReconcileService struct {
	branches branchLister
	opener   profileOpener
	global   repository.ProfileRepository
	workers  int
}

// NewReconcileService creates a ReconcileService. workers bounds how many
// branches are reconciled concurrently.
func NewReconcileService(branches branchLister, opener profileOpener, global repository.ProfileRepository, workers int) *ReconcileService {
	if workers < 1 {
		workers = 1
	}
	return &ReconcileService{branches: branches, opener: opener, global: global, workers: workers}
}

// Run reconciles tenant branches per the filter.
func (s *ReconcileService) Run(ctx context.Context, filter ReconcileFilter) (*ReconcileSummary, error) {
	started := time.Now()

	all, err := s.branches.ListBranches(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[uint]bool, len(filter.TenantIDs))
	for _, id := range filter.TenantIDs {
		wanted[id] = true
	}

	// Only conventionally named branches belong to tenants; anything else
	// on the provider account is out of scope.
	targets := make([]models.DatabaseBranch, 0, len(all))
	for _, b := range all {
		tenantID, ok := ParseBranchTenantID(b.Name)
		if !ok {
			continue
		}
		if len(wanted) > 0 && !wanted[tenantID] {
			continue
		}
		targets = append(targets, b)
	}

	// The global copy is read once per run, not once per branch.
	globals, err := s.global.List(ctx)
	if err != nil {
		return nil, err
	}
	globalByID := make(map[uint]*models.Profile, len(globals))
	for i := range globals {
		globalByID[globals[i].ID] = &globals[i]
	}

	summary := &ReconcileSummary{
		StartedAt: started.UTC(),
		DryRun:    filter.DryRun,
		Branches:  len(targets),
		Tenants:   make([]TenantReport, len(targets)),
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			summary.Tenants[i] = s.reconcileBranch(ctx, targets[i], globalByID, filter.DryRun)
		}(i)
	}
	wg.Wait()

	for _, t := range summary.Tenants {
		summary.Processed += t.Processed
		summary.Written += t.Written
		summary.Skipped += t.Skipped
		summary.MissingGlobal += t.MissingGlobal
		summary.Failed += t.Failed
	}
	summary.Duration = time.Since(started)

	middleware.Logger.InfoContext(ctx, "reconciliation run finished",
		"branches", summary.Branches, "processed", summary.Processed,
		"written", summary.Written, "skipped", summary.Skipped,
		"missing_global", summary.MissingGlobal, "failed", summary.Failed,
		"dry_run", filter.DryRun, "duration", summary.Duration.String())
	return summary, nil
}

func (s *ReconcileService) reconcileBranch(ctx context.Context, branch models.DatabaseBranch, globalByID map[uint]*models.Profile, dryRun bool) TenantReport {
	tenantID, _ := ParseBranchTenantID(branch.Name)
	report := TenantReport{Branch: branch.Name, TenantID: tenantID}

	profiles, err := s.opener.OpenProfiles(branch)
	if err != nil {
		report.Error = err.Error()
		middleware.Logger.WarnContext(ctx, "branch unreachable during reconciliation",
			"branch", branch.Name, "error", err)
		return report
	}

	local, err := profiles.List(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	for i := range local {
		row := &local[i]
		report.Processed++

		global, ok := globalByID[row.ID]
		switch {
		case !ok:
			report.MissingGlobal++
			middleware.ReconcileRows.WithLabelValues("missing_global").Inc()
		case row.MirroredEqual(global):
			report.Skipped++
			middleware.ReconcileRows.WithLabelValues("skipped").Inc()
		default:
			change := RowChange{ProfileID: row.ID, Before: row.Mirrored()}
			row.CopyMirroredFrom(global)
			change.After = row.Mirrored()
			if !dryRun {
				if err := profiles.Update(ctx, row); err != nil {
					report.Failed++
					report.Failures = append(report.Failures, RowFailure{ProfileID: row.ID, Error: err.Error()})
					middleware.ReconcileRows.WithLabelValues("failed").Inc()
					continue
				}
			}
			report.Written++
			report.Changes = append(report.Changes, change)
			middleware.ReconcileRows.WithLabelValues("written").Inc()
		}
	}
	return report
}
