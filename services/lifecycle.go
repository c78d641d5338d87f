package services

import (
	"fmt"
	"time"

	"troop-badge-system/models"

	"github.com/google/uuid"
)

// Star lifecycle rules. These functions mutate in-memory entries only;
// persistence (with its optimistic status precondition) lives in BadgeService.

// SubmitStarInput carries everything a participant's star submission needs.
// Exactly one of TemplateID / Territory must be set.
type SubmitStarInput struct {
	ParticipantID string     `json:"participant_id"`
	TemplateID    string     `json:"template_id,omitempty"`
	Territory     string     `json:"territory,omitempty"`
	Level         int        `json:"level"`
	StarType      string     `json:"star_type"`
	Objectif      string     `json:"objectif"`
	Description   string     `json:"description,omitempty"`
	Fierte        string     `json:"fierte,omitempty"`
	DateObtention *time.Time `json:"date_obtention,omitempty"`
}

// Ref returns the badge reference the submission targets.
func (in SubmitStarInput) Ref() models.TemplateRef {
	if in.TemplateID != "" {
		return models.KnownTemplate(in.TemplateID)
	}
	return models.AdHocTerritory(in.Territory)
}

// CanSubmitFor decides whether the caller may submit a star for the target
// participant: managers submit for anyone, everyone else only for their own
// progression (the participant row mirrors the caller's roster id, or is the
// caller directly in locally-managed troops).
func CanSubmitFor(caps models.Capabilities, userID string, p *models.Participant) bool {
	if !caps.CanView {
		return false
	}
	if caps.CanManage {
		return true
	}
	if p == nil || userID == "" {
		return false
	}
	if p.ID == userID {
		return true
	}
	return p.ExternalID != nil && *p.ExternalID == userID
}

// SubmitStar validates the submission and constructs a new pending entry.
// nextLevel is the participant's current next eligible level for this badge
// (see NextEligibleLevel); a stale level means the UI must refresh and retry.
func SubmitStar(in SubmitStarInput, nextLevel int) (*models.StarEntry, error) {
	if in.ParticipantID == "" {
		return nil, fmt.Errorf("%w: participant_id is required", models.ErrValidation)
	}
	if in.TemplateID == "" && in.Territory == "" {
		return nil, fmt.Errorf("%w: template_id or territory is required", models.ErrValidation)
	}
	if in.TemplateID != "" && in.Territory != "" {
		return nil, fmt.Errorf("%w: template_id and territory are mutually exclusive", models.ErrValidation)
	}
	if in.Objectif == "" {
		return nil, fmt.Errorf("%w: objectif is required", models.ErrValidation)
	}
	if in.Level < 1 {
		return nil, fmt.Errorf("%w: level must be >= 1", models.ErrValidation)
	}
	if in.Level != nextLevel {
		return nil, fmt.Errorf("%w: level %d is not the next eligible level (%d)", models.ErrValidation, in.Level, nextLevel)
	}

	starType := in.StarType
	switch starType {
	case "":
		starType = models.StarTypeProie
	case models.StarTypeProie, models.StarTypeBattue:
	default:
		return nil, fmt.Errorf("%w: unknown star_type %q", models.ErrValidation, in.StarType)
	}

	entry := &models.StarEntry{
		ID:            uuid.NewString(),
		ParticipantID: in.ParticipantID,
		Etoiles:       in.Level,
		StarType:      starType,
		Status:        models.StarStatusPending,
		Objectif:      in.Objectif,
		Description:   in.Description,
		Fierte:        in.Fierte,
		DateObtention: in.DateObtention,
	}
	if in.TemplateID != "" {
		tid := in.TemplateID
		entry.BadgeTemplateID = &tid
	} else {
		entry.Territoire = models.AdHocTerritory(in.Territory).Territory
	}
	return entry, nil
}

// ApproveStar moves a pending entry to approved. Approval never carries a
// delivery timestamp; delivery is a separate step.
func ApproveStar(e *models.StarEntry) error {
	if e.Status != models.StarStatusPending {
		return fmt.Errorf("%w: cannot approve entry in status %q", models.ErrInvalidTransition, e.Status)
	}
	e.Status = models.StarStatusApproved
	e.DeliveredAt = nil
	return nil
}

// RejectStar moves a pending entry to rejected. The reason is stored as-is.
func RejectStar(e *models.StarEntry, reason string) error {
	if e.Status != models.StarStatusPending {
		return fmt.Errorf("%w: cannot reject entry in status %q", models.ErrInvalidTransition, e.Status)
	}
	e.Status = models.StarStatusRejected
	e.RejectionReason = reason
	e.DeliveredAt = nil
	return nil
}

// MarkDelivered stamps an approved entry as handed out. Delivering an
// already-delivered entry is a no-op; delivering anything else is an error.
// Returns whether the entry changed.
func MarkDelivered(e *models.StarEntry, now time.Time) (bool, error) {
	if e.Status != models.StarStatusApproved {
		return false, fmt.Errorf("%w: cannot deliver entry in status %q", models.ErrInvalidTransition, e.Status)
	}
	if e.DeliveredAt != nil {
		return false, nil
	}
	t := now
	e.DeliveredAt = &t
	return true, nil
}

// DeliveryReport is the per-id outcome of a bulk delivery. The batch is never
// all-or-nothing: eligible entries are delivered even when others fail.
type DeliveryReport struct {
	Delivered []string          `json:"delivered"`
	Skipped   []string          `json:"skipped"` // already delivered
	Failed    map[string]string `json:"failed,omitempty"`
}

// Ok reports whether every entry in the batch was delivered or skipped.
func (r DeliveryReport) Ok() bool { return len(r.Failed) == 0 }

// MarkDeliveredBulk applies MarkDelivered to every entry, collecting per-id
// outcomes instead of aborting on the first ineligible entry.
func MarkDeliveredBulk(entries []*models.StarEntry, now time.Time) DeliveryReport {
	report := DeliveryReport{Failed: map[string]string{}}
	for _, e := range entries {
		changed, err := MarkDelivered(e, now)
		switch {
		case err != nil:
			report.Failed[e.ID] = err.Error()
		case changed:
			report.Delivered = append(report.Delivered, e.ID)
		default:
			report.Skipped = append(report.Skipped, e.ID)
		}
	}
	return report
}
