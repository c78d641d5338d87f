package models

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Star lifecycle states. An entry is created pending, leaves pending exactly
// once (approved or rejected), and an approved entry may later be delivered.
const (
	StarStatusPending  = "pending"
	StarStatusApproved = "approved"
	StarStatusRejected = "rejected"
)

// Star categories
const (
	StarTypeProie  = "proie"  // individual accomplishment
	StarTypeBattue = "battue" // group activity
)

// DefaultObtainableStars is the floor used when a badge has no configured
// level count (ad-hoc territories, templates missing their levels).
const DefaultObtainableStars = 3

// BadgeTemplate: static badge config, created/edited by the troop admins.
type BadgeTemplate struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name       string `gorm:"not null" json:"name"` // "Cuisine trappeur", "Orientation"
	Slug       string `gorm:"uniqueIndex;not null" json:"slug"`
	LevelCount int    `json:"level_count" gorm:"default:0"` // max obtainable stars, 0 = derive from Levels
	ImageURL   string `gorm:"type:text" json:"image_url,omitempty"`

	Levels []BadgeLevel `gorm:"foreignKey:BadgeTemplateID" json:"levels,omitempty"`

	Timestamps
}

// ObtainableStars resolves the template's star cap. Canonical precedence:
// explicit LevelCount, then the number of Levels rows, then the default floor.
func (t *BadgeTemplate) ObtainableStars() int {
	if t.LevelCount >= 1 {
		return t.LevelCount
	}
	if len(t.Levels) > 0 {
		return len(t.Levels)
	}
	return DefaultObtainableStars
}

// BadgeLevel describes one star level of a template (requirements text shown
// to participants when they pick their next objective).
type BadgeLevel struct {
	ID              string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	BadgeTemplateID string `gorm:"index;not null" json:"badge_template_id"`
	Level           int    `gorm:"not null" json:"level"`
	Title           string `json:"title,omitempty"`
	Requirements    string `gorm:"type:text" json:"requirements,omitempty"`

	Timestamps
}

// StarEntry is the mutable unit of progression: one star level earned (or
// being earned) by one participant toward one badge. BadgeTemplateID is nil
// for custom badges identified by a free-text territory name instead.
type StarEntry struct {
	ID              string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ParticipantID   string  `gorm:"index;not null;uniqueIndex:idx_star_unique_level" json:"participant_id"`
	BadgeTemplateID *string `gorm:"index;uniqueIndex:idx_star_unique_level" json:"badge_template_id,omitempty"`
	Territoire      string  `gorm:"uniqueIndex:idx_star_unique_level" json:"territoire,omitempty"`
	Etoiles         int     `gorm:"not null;uniqueIndex:idx_star_unique_level" json:"etoiles"` // star level, >= 1
	StarType        string  `gorm:"type:varchar(16);default:'proie'" json:"star_type"`
	Status          string  `gorm:"type:varchar(16);default:'pending';index" json:"status"`

	Objectif    string `gorm:"type:text;not null" json:"objectif"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Fierte      string `gorm:"type:text" json:"fierte,omitempty"`

	DateObtention   *time.Time `json:"date_obtention,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"` // set only while Status = approved
	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty"`

	Timestamps
}

// TemplateRef identifies the badge an entry counts toward: a known template by
// id, or an ad-hoc territory by slugged name. Exactly one side is set.
type TemplateRef struct {
	TemplateID string `json:"template_id,omitempty"`
	Territory  string `json:"territory,omitempty"`
}

// KnownTemplate references a configured BadgeTemplate.
func KnownTemplate(id string) TemplateRef {
	return TemplateRef{TemplateID: id}
}

// AdHocTerritory references a custom badge by its free-text name. Names are
// slugged so "Cuisine Trappeur" and "cuisine trappeur" group together.
func AdHocTerritory(name string) TemplateRef {
	return TemplateRef{Territory: slug.Make(name)}
}

// RefForEntry derives the grouping reference for a star entry.
func RefForEntry(e *StarEntry) TemplateRef {
	if e.BadgeTemplateID != nil && *e.BadgeTemplateID != "" {
		return KnownTemplate(*e.BadgeTemplateID)
	}
	return AdHocTerritory(e.Territoire)
}

func (r TemplateRef) IsKnown() bool { return r.TemplateID != "" }

func (r TemplateRef) IsZero() bool { return r.TemplateID == "" && r.Territory == "" }

// Key returns a stable map key, disjoint between the two variants.
func (r TemplateRef) Key() string {
	if r.IsKnown() {
		return "tpl:" + r.TemplateID
	}
	return "adhoc:" + r.Territory
}

// DisplayTerritory turns a slugged territory back into something presentable.
func (r TemplateRef) DisplayTerritory() string {
	return strings.ReplaceAll(r.Territory, "-", " ")
}
