package models

// DatabaseBranch describes a physically separate database allocated to one
// tenant. Branch existence is owned by the hosting provider and queried live;
// only the tenant mapping is derived locally by joining on tenant requests,
// so this type is never persisted.
type DatabaseBranch struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
	// TenantID is nil for orphaned branches (created but never bound, or
	// left behind by a deletion that failed to clean up).
	TenantID      *uint  `json:"tenant_id,omitempty"`
	OwnerUsername string `json:"owner_username,omitempty"`
	Mapped        bool   `json:"mapped"`
}

// BranchHealth is the result of comparing a branch's actual table set
// against the expected schema manifest. Extra tables are reported but never
// fail the check; schemas are forward-compatible.
type BranchHealth struct {
	Branch  string   `json:"branch"`
	Pass    bool     `json:"pass"`
	Tables  []string `json:"tables"`
	Missing []string `json:"missing"`
	Extra   []string `json:"extra"`
}
