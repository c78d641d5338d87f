package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Participant is a troop member tracked by the badge system. Rows are owned by
// the roster service and mirrored here by the roster sync worker; local writes
// only happen for troops that run without a roster service.
type Participant struct {
	ID         string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalID *string `gorm:"uniqueIndex" json:"external_id,omitempty"` // id in the roster service
	FirstName  string  `gorm:"not null" json:"first_name"`
	LastName   string  `gorm:"not null" json:"last_name"`
	GroupID    *string `gorm:"index" json:"group_id,omitempty"`
	Totem      string  `json:"totem,omitempty"` // scouting nickname, e.g. "Loutre agile"

	Timestamps
}

// DisplayName is the name shown in queues and dashboards. Totem wins when set.
func (p *Participant) DisplayName() string {
	if p.Totem != "" {
		return p.Totem
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Group is a unit within the troop (sizaine/patrouille).
type Group struct {
	ID   string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
