// Package models contains data structures for the application's domain models.
package models

import "time"

// TenantRequestStatus defines lifecycle states for tenant provisioning requests.
type TenantRequestStatus string

const (
	// TenantRequestStatusPending indicates the request is awaiting review.
	TenantRequestStatusPending TenantRequestStatus = "pending"
	// TenantRequestStatusActive indicates the request was approved and a
	// database branch is mapped to it.
	TenantRequestStatusActive TenantRequestStatus = "active"
	// TenantRequestStatusRejected indicates the request was denied.
	TenantRequestStatusRejected TenantRequestStatus = "rejected"
	// TenantRequestStatusDeleted indicates the tenant was torn down.
	TenantRequestStatusDeleted TenantRequestStatus = "deleted"
)

// TenantRequest is an operator's request for an isolated tenant instance.
// Its ID doubles as the tenant id once the request is active; id 0 is
// reserved for the global instance and never stored here.
type TenantRequest struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	DesiredDomain   string              `gorm:"size:255;not null;index:idx_tenant_requests_desired_domain,unique,expression:LOWER(desired_domain),where:status <> 'deleted'" json:"desired_domain"`
	PlatformDomain  string              `gorm:"size:255" json:"platform_domain"`
	Status          TenantRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RejectionReason string              `gorm:"type:text" json:"rejection_reason,omitempty"`
	OwnerProfileID  uint                `gorm:"not null;index" json:"owner_profile_id"`
	Owner           *Profile            `gorm:"foreignKey:OwnerProfileID" json:"owner,omitempty"`

	// Branch mapping. Cleared when the branch is successfully torn down so a
	// repeated delete retries only residual resources.
	BranchName string `gorm:"size:120" json:"branch_name,omitempty"`
	BranchHost string `gorm:"size:255" json:"branch_host,omitempty"`

	// DomainBoundAt is set once the custom domain was registered with the
	// hosting layer; nil means no binding exists (or it was torn down).
	DomainBoundAt *time.Time `json:"domain_bound_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (TenantRequest) TableName() string {
	return "tenant_requests"
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
// Note that active is not terminal: an active tenant can still be deleted.
func (s TenantRequestStatus) IsTerminal() bool {
	return s == TenantRequestStatusRejected || s == TenantRequestStatusDeleted
}

// ResourceOutcome records the result of one cleanup sub-operation.
type ResourceOutcome string

const (
	// ResourceOK means the resource was cleaned up (or was already gone).
	ResourceOK ResourceOutcome = "ok"
	// ResourceFailed means cleanup was attempted and failed; retry later.
	ResourceFailed ResourceOutcome = "failed"
	// ResourceSkipped means there was nothing to clean up.
	ResourceSkipped ResourceOutcome = "skipped"
)

// CleanupStep describes the outcome of one resource during tenant deletion.
type CleanupStep struct {
	Outcome ResourceOutcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
}

// CleanupReport is the residual-resource report returned by tenant deletion.
// Deletion is a best-effort saga across independent systems: the request row,
// the database branch, and the domain binding each succeed or fail on their
// own, and the report tells the operator exactly what is left to retry.
type CleanupReport struct {
	RequestID uint        `json:"request_id"`
	Request   CleanupStep `json:"request"`
	Branch    CleanupStep `json:"branch"`
	Domain    CleanupStep `json:"domain"`
}

// Clean reports whether no residual resources remain.
func (r CleanupReport) Clean() bool {
	return r.Request.Outcome != ResourceFailed &&
		r.Branch.Outcome != ResourceFailed &&
		r.Domain.Outcome != ResourceFailed
}
