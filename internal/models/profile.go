package models

import "time"

// Profile holds identity and economy fields for one user. The canonical copy
// lives in the global database; each tenant branch carries a cached copy
// under the same ID for low-latency local reads. The reconciliation job
// copies the mirrored fields one way, global to branch, never back.
type Profile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Username         string    `gorm:"size:60;not null;index" json:"username"`
	AvatarURL        string    `gorm:"size:512" json:"avatar_url"`
	Points           int64     `gorm:"not null;default:0" json:"points"`
	VirtualCurrency  int64     `gorm:"not null;default:0" json:"virtual_currency"`
	InvitationPoints int64     `gorm:"not null;default:0" json:"invitation_points"`
	FreePostsCount   int       `gorm:"not null;default:0" json:"free_posts_count"`
	IsAdmin          bool      `gorm:"default:false" json:"is_admin"`
	IsSuperAdmin     bool      `gorm:"default:false" json:"is_super_admin"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Profile) TableName() string {
	return "profiles"
}

// MirroredFields is the snapshot of the identity/economy fields that
// reconciliation copies from the global database into tenant branches.
type MirroredFields struct {
	Username         string `json:"username"`
	AvatarURL        string `json:"avatar_url"`
	Points           int64  `json:"points"`
	VirtualCurrency  int64  `json:"virtual_currency"`
	InvitationPoints int64  `json:"invitation_points"`
	FreePostsCount   int    `json:"free_posts_count"`
}

// Mirrored returns the profile's mirrored field snapshot.
func (p *Profile) Mirrored() MirroredFields {
	return MirroredFields{
		Username:         p.Username,
		AvatarURL:        p.AvatarURL,
		Points:           p.Points,
		VirtualCurrency:  p.VirtualCurrency,
		InvitationPoints: p.InvitationPoints,
		FreePostsCount:   p.FreePostsCount,
	}
}

// MirroredEqual reports whether the mirrored identity/economy fields of two
// profiles already match, so reconciliation can skip a no-op write.
func (p *Profile) MirroredEqual(global *Profile) bool {
	return p.Username == global.Username &&
		p.AvatarURL == global.AvatarURL &&
		p.Points == global.Points &&
		p.VirtualCurrency == global.VirtualCurrency &&
		p.InvitationPoints == global.InvitationPoints &&
		p.FreePostsCount == global.FreePostsCount
}

// CopyMirroredFrom overwrites the mirrored fields with the global values.
func (p *Profile) CopyMirroredFrom(global *Profile) {
	p.Username = global.Username
	p.AvatarURL = global.AvatarURL
	p.Points = global.Points
	p.VirtualCurrency = global.VirtualCurrency
	p.InvitationPoints = global.InvitationPoints
	p.FreePostsCount = global.FreePostsCount
	p.UpdatedAt = global.UpdatedAt
}
