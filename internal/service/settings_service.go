package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"arbor/internal/cache"
	"arbor/internal/models"
	"arbor/internal/repository"
)

// SettingInput is one incoming setting write.
type SettingInput struct {
	Key         string             `json:"key"`
	Value       string             `json:"value"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Type        models.SettingType `json:"type,omitempty"`
}

// ImportEntry is the per-key outcome of a staged bulk import.
type ImportEntry struct {
	Key      string `json:"key"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ImportReport summarizes a staged bulk import. With Committed false nothing
// was written; the report is a dry-run preview.
type ImportReport struct {
	TenantID  uint          `json:"tenant_id"`
	Committed bool          `json:"committed"`
	Applied   int           `json:"applied"`
	Entries   []ImportEntry `json:"entries"`
}

// SettingsService resolves and mutates the two-tier configuration store.
// Tier 0 holds global defaults; tier N holds tenant N's overrides. Reads
// fall through override to default; writes are authorization-gated per tier.
type SettingsService struct {
	repo repository.SettingRepository
	// editableKeys is the allow-list of keys a non-privileged tenant
	// operator may override. Privileged callers bypass it.
	editableKeys map[string]bool
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(repo repository.SettingRepository, editableKeys map[string]bool) *SettingsService {
	return &SettingsService{repo: repo, editableKeys: editableKeys}
}

// Get resolves one key for a tenant: the tenant's override if present,
// otherwise the global default. A key with neither is not found.
func (s *SettingsService) Get(ctx context.Context, key string, tenantID uint) (*models.EffectiveSetting, error) {
	if tenantID != 0 {
		override, err := s.repo.Get(ctx, key, tenantID)
		if err != nil {
			return nil, err
		}
		if override != nil {
			return &models.EffectiveSetting{Setting: *override, IsCustom: true}, nil
		}
	}
	def, err := s.repo.Get(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, models.NewNotFoundError("Setting", key)
	}
	return &models.EffectiveSetting{Setting: *def, IsCustom: false}, nil
}

// GetAll resolves every key for a tenant. The result carries exactly one row
// per key, override winning over default, annotated with provenance.
func (s *SettingsService) GetAll(ctx context.Context, tenantID uint) ([]models.EffectiveSetting, error) {
	var out []models.EffectiveSetting
	err := cache.Aside(ctx, cache.SettingsKey(tenantID), &out, cache.SettingsTTL, func() error {
		rows, err := s.repo.ListForTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		out = mergeTiers(rows, tenantID)
		return nil
	})
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok {
			return nil, appErr
		}
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func mergeTiers(rows []models.Setting, tenantID uint) []models.EffectiveSetting {
	byKey := make(map[string]models.EffectiveSetting, len(rows))
	for _, row := range rows {
		isCustom := row.TenantID != 0
		if existing, ok := byKey[row.Key]; ok && existing.IsCustom && !isCustom {
			continue
		}
		byKey[row.Key] = models.EffectiveSetting{Setting: row, IsCustom: isCustom}
	}

	out := make([]models.EffectiveSetting, 0, len(byKey))
	for _, es := range byKey {
		out = append(out, es)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Set writes one setting row. Privileged callers may write any tier,
// including brand-new global defaults. Non-privileged callers may only
// override allow-listed keys on their own tenant tier, and only for keys
// that already have a global default.
func (s *SettingsService) Set(ctx context.Context, tenantID uint, input SettingInput, privileged bool) (*models.Setting, error) {
	// Keys are lowercase identifiers, same normalization the allow-list gets.
	input.Key = strings.ToLower(strings.TrimSpace(input.Key))
	if input.Key == "" {
		return nil, models.NewValidationError("setting key is required")
	}

	if !privileged {
		if tenantID == 0 {
			return nil, models.NewForbiddenError("only privileged operators may change global defaults")
		}
		if !s.editableKeys[input.Key] {
			return nil, models.NewForbiddenError("setting is not tenant-editable: " + input.Key)
		}
	}

	def, err := s.repo.Get(ctx, input.Key, 0)
	if err != nil {
		return nil, err
	}
	if tenantID != 0 && def == nil {
		return nil, models.NewValidationError("no global default exists for key: " + input.Key)
	}

	row := models.Setting{
		Key:         input.Key,
		TenantID:    tenantID,
		Value:       input.Value,
		Name:        input.Name,
		Description: input.Description,
		Type:        input.Type,
	}
	// Overrides inherit metadata from the default unless explicitly set.
	if def != nil {
		if row.Name == "" {
			row.Name = def.Name
		}
		if row.Description == "" {
			row.Description = def.Description
		}
		if row.Type == "" {
			row.Type = def.Type
		}
	}
	if row.Type == "" {
		row.Type = models.SettingTypeText
	}
	if err := validateSettingValue(row.Type, row.Value); err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, &row); err != nil {
		return nil, err
	}
	// A default change is also visible to every tenant without an override;
	// their merged caches expire on their own short TTL.
	cache.InvalidateSettings(ctx, tenantID)
	return &row, nil
}

func validateSettingValue(t models.SettingType, value string) error {
	switch t {
	case models.SettingTypeBoolean:
		if value != "true" && value != "false" {
			return models.NewValidationError("boolean setting must be \"true\" or \"false\"")
		}
	case models.SettingTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return models.NewValidationError("number setting must be numeric: " + value)
		}
	}
	return nil
}

// RevertToDefault removes a tenant's override so the global default shows
// through again. Reverting an absent override is a no-op; reverting tier 0
// is invalid because a default has nothing to fall back to.
func (s *SettingsService) RevertToDefault(ctx context.Context, key string, tenantID uint) error {
	if tenantID == 0 {
		return models.NewValidationError("global defaults cannot be reverted")
	}
	if err := s.repo.Delete(ctx, key, tenantID); err != nil {
		return err
	}
	cache.InvalidateSettings(ctx, tenantID)
	return nil
}

// Import applies a batch of overrides for one tenant in two stages. Every
// entry is validated first; with commit false the report is returned without
// writing anything, with commit true only the accepted entries are applied.
// A rejected entry never blocks the accepted ones.
func (s *SettingsService) Import(ctx context.Context, tenantID uint, inputs []SettingInput, commit, privileged bool) (*ImportReport, error) {
	if tenantID == 0 && !privileged {
		return nil, models.NewForbiddenError("only privileged operators may import global defaults")
	}

	report := &ImportReport{TenantID: tenantID, Committed: commit}
	accepted := make([]models.Setting, 0, len(inputs))

	for _, input := range inputs {
		input.Key = strings.ToLower(strings.TrimSpace(input.Key))
		entry := ImportEntry{Key: input.Key}

		row, reason := s.stageOne(ctx, tenantID, input, privileged)
		if reason != "" {
			entry.Reason = reason
			report.Entries = append(report.Entries, entry)
			continue
		}
		entry.Accepted = true
		report.Entries = append(report.Entries, entry)
		accepted = append(accepted, *row)
	}

	if !commit {
		return report, nil
	}
	for i := range accepted {
		if err := s.repo.Upsert(ctx, &accepted[i]); err != nil {
			return nil, err
		}
		report.Applied++
	}
	if report.Applied > 0 {
		cache.InvalidateSettings(ctx, tenantID)
	}
	return report, nil
}

// stageOne validates one import entry without writing. It returns the row to
// apply, or a human-readable rejection reason.
func (s *SettingsService) stageOne(ctx context.Context, tenantID uint, input SettingInput, privileged bool) (*models.Setting, string) {
	if input.Key == "" {
		return nil, "key is required"
	}
	if !privileged && !s.editableKeys[input.Key] {
		return nil, "key is not tenant-editable"
	}

	def, err := s.repo.Get(ctx, input.Key, 0)
	if err != nil {
		return nil, "default lookup failed: " + err.Error()
	}
	if tenantID != 0 && def == nil {
		return nil, "no global default exists for this key"
	}

	row := models.Setting{
		Key:      input.Key,
		TenantID: tenantID,
		Value:    input.Value,
		Name:     input.Name,
		Type:     input.Type,
	}
	if def != nil {
		if row.Name == "" {
			row.Name = def.Name
		}
		if row.Description == "" {
			row.Description = def.Description
		}
		if row.Type == "" {
			row.Type = def.Type
		}
	}
	if row.Type == "" {
		row.Type = models.SettingTypeText
	}
	if err := validateSettingValue(row.Type, row.Value); err != nil {
		return nil, err.Error()
	}
	return &row, ""
}

// Export returns only the tenant's own override rows, the set an operator
// would re-import elsewhere. Defaults are not part of a tenant's export.
func (s *SettingsService) Export(ctx context.Context, tenantID uint) ([]models.Setting, error) {
	rows, err := s.repo.ListForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Setting, 0)
	for _, row := range rows {
		if row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
