package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"troop-badge-system/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

type BadgeService struct {
	DB *gorm.DB
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db}
}

// loadAll fetches the reference collections and entries, then the pure
// aggregator runs over the joined in-memory result.
func (s *BadgeService) loadAll() ([]models.Participant, []models.Group, []models.BadgeTemplate, []models.StarEntry, error) {
	var participants []models.Participant
	if err := s.DB.Find(&participants).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load participants: %w", err)
	}
	var groups []models.Group
	if err := s.DB.Find(&groups).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load groups: %w", err)
	}
	var templates []models.BadgeTemplate
	if err := s.DB.Preload("Levels").Find(&templates).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load templates: %w", err)
	}
	var entries []models.StarEntry
	if err := s.DB.Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load star entries: %w", err)
	}
	return participants, groups, templates, entries, nil
}

// Records returns the per-participant dashboard rows, sorted.
func (s *BadgeService) Records(sortKey string, desc bool) ([]ParticipantRecord, error) {
	participants, groups, templates, entries, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	records := BuildParticipantRecords(participants, groups, templates, entries)
	SortRecords(records, sortKey, desc)
	return records, nil
}

// PendingQueue returns the approval work queue.
func (s *BadgeService) PendingQueue() ([]QueueItem, error) {
	participants, groups, templates, entries, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	return PendingApprovalQueue(entries, participants, groups, templates), nil
}

// DeliveriesQueue returns approved entries still waiting to be handed out.
func (s *BadgeService) DeliveriesQueue() ([]QueueItem, error) {
	participants, groups, templates, entries, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	return DeliveryQueue(entries, participants, groups, templates), nil
}

// NextLevel answers the next eligible star for one participant and badge.
func (s *BadgeService) NextLevel(participantID string, ref models.TemplateRef) (nextStar, maxStars int, err error) {
	var count int64
	if err := s.DB.Model(&models.Participant{}).Where("id = ?", participantID).Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, fmt.Errorf("%w: participant %s", models.ErrNotFound, participantID)
	}

	var templates []models.BadgeTemplate
	if ref.IsKnown() {
		if err := s.DB.Preload("Levels").Where("id = ?", ref.TemplateID).Find(&templates).Error; err != nil {
			return 0, 0, err
		}
		if len(templates) == 0 {
			return 0, 0, fmt.Errorf("%w: badge template %s", models.ErrNotFound, ref.TemplateID)
		}
	}

	var entries []models.StarEntry
	if err := s.DB.Where("participant_id = ?", participantID).Find(&entries).Error; err != nil {
		return 0, 0, err
	}

	next, max := NextEligibleLevel(participantID, ref, templates, entries)
	return next, max, nil
}

// Submit validates a star submission against the caller's capabilities and
// the participant's current next eligible level, then persists the new
// pending entry. Non-managers may only submit for their own progression.
func (s *BadgeService) Submit(in SubmitStarInput, caps models.Capabilities, userID string) (*models.StarEntry, error) {
	if in.ParticipantID == "" || (in.TemplateID == "" && in.Territory == "") {
		// let the pure validator produce the precise message
		return SubmitStar(in, in.Level)
	}

	var participant models.Participant
	if err := s.DB.Where("id = ?", in.ParticipantID).First(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: participant %s", models.ErrNotFound, in.ParticipantID)
		}
		return nil, err
	}
	if !CanSubmitFor(caps, userID, &participant) {
		return nil, fmt.Errorf("%w: submitting for another participant requires the manage capability", models.ErrForbidden)
	}

	next, _, err := s.NextLevel(in.ParticipantID, in.Ref())
	if err != nil {
		return nil, err
	}

	entry, err := SubmitStar(in, next)
	if err != nil {
		return nil, err
	}
	if err := s.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("create star entry: %w", err)
	}
	log.Printf("⭐ Star submitted: participant=%s badge=%s level=%d", entry.ParticipantID, models.RefForEntry(entry).Key(), entry.Etoiles)
	return entry, nil
}

// Approve moves a pending entry to approved. The status precondition on the
// UPDATE makes the pending→approved transition at-most-once even with two
// approvers clicking at the same time.
func (s *BadgeService) Approve(id string) (*models.StarEntry, error) {
	res := s.DB.Model(&models.StarEntry{}).
		Where("id = ? AND status = ?", id, models.StarStatusPending).
		Updates(map[string]interface{}{
			"status":       models.StarStatusApproved,
			"delivered_at": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionConflict(id, "approve")
	}

	entry, err := s.getEntry(id)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Star approved: id=%s participant=%s level=%d", entry.ID, entry.ParticipantID, entry.Etoiles)
	return entry, nil
}

// Reject moves a pending entry to rejected, keeping the free-text reason.
func (s *BadgeService) Reject(id, reason string) (*models.StarEntry, error) {
	res := s.DB.Model(&models.StarEntry{}).
		Where("id = ? AND status = ?", id, models.StarStatusPending).
		Updates(map[string]interface{}{
			"status":           models.StarStatusRejected,
			"rejection_reason": reason,
			"delivered_at":     nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionConflict(id, "reject")
	}

	entry, err := s.getEntry(id)
	if err != nil {
		return nil, err
	}
	log.Printf("🚫 Star rejected: id=%s participant=%s level=%d", entry.ID, entry.ParticipantID, entry.Etoiles)
	return entry, nil
}

// Deliver stamps one approved entry as handed out. Idempotent: delivering an
// already-delivered entry succeeds without touching the timestamp.
func (s *BadgeService) Deliver(id string) (*models.StarEntry, error) {
	now := time.Now()
	res := s.DB.Model(&models.StarEntry{}).
		Where("id = ? AND status = ? AND delivered_at IS NULL", id, models.StarStatusApproved).
		Update("delivered_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		entry, err := s.getEntry(id)
		if err != nil {
			return nil, err
		}
		if entry.Status == models.StarStatusApproved && entry.DeliveredAt != nil {
			return entry, nil // already delivered
		}
		return nil, fmt.Errorf("%w: cannot deliver entry in status %q", models.ErrInvalidTransition, entry.Status)
	}
	return s.getEntry(id)
}

// DeliverBulk delivers every eligible entry in the batch and reports per-id
// outcomes. Ineligible or unknown ids never abort the batch.
func (s *BadgeService) DeliverBulk(ids []string) (DeliveryReport, error) {
	var entries []models.StarEntry
	if err := s.DB.Where("id IN ?", ids).Find(&entries).Error; err != nil {
		return DeliveryReport{}, err
	}

	found := make(map[string]*models.StarEntry, len(entries))
	ptrs := make([]*models.StarEntry, 0, len(entries))
	for i := range entries {
		found[entries[i].ID] = &entries[i]
		ptrs = append(ptrs, &entries[i])
	}

	report := MarkDeliveredBulk(ptrs, time.Now())
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			report.Failed[id] = "star entry not found"
		}
	}

	// Persist only the entries the controller actually delivered, each with
	// the same precondition as single delivery.
	delivered := report.Delivered
	report.Delivered = nil
	for _, id := range delivered {
		e := found[id]
		res := s.DB.Model(&models.StarEntry{}).
			Where("id = ? AND status = ? AND delivered_at IS NULL", id, models.StarStatusApproved).
			Update("delivered_at", *e.DeliveredAt)
		switch {
		case res.Error != nil:
			report.Failed[id] = res.Error.Error()
		case res.RowsAffected == 0:
			report.Skipped = append(report.Skipped, id) // raced with another delivery
		default:
			report.Delivered = append(report.Delivered, id)
		}
	}

	log.Printf("🎖️ Bulk delivery: %d delivered, %d skipped, %d failed", len(report.Delivered), len(report.Skipped), len(report.Failed))
	return report, nil
}

func (s *BadgeService) getEntry(id string) (*models.StarEntry, error) {
	var entry models.StarEntry
	if err := s.DB.Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: star entry %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return &entry, nil
}

// transitionConflict decides whether a zero-row transition was a missing
// entry or an entry that already left pending.
func (s *BadgeService) transitionConflict(id, action string) error {
	entry, err := s.getEntry(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot %s entry in status %q", models.ErrInvalidTransition, action, entry.Status)
}

// StartDeliveryReminderScheduler runs a daily scan for approved stars that
// have been waiting for their ceremony too long, so the leaders get a digest
// in the logs and the entries are flagged once.
func (s *BadgeService) StartDeliveryReminderScheduler() {
	days := 14
	if v := os.Getenv("DELIVERY_REMINDER_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			cutoff := time.Now().AddDate(0, 0, -days)
			var stale []models.StarEntry
			err := s.DB.Where("status = ? AND delivered_at IS NULL AND reminder_sent_at IS NULL AND updated_at <= ?",
				models.StarStatusApproved, cutoff).
				Find(&stale).Error
			if err != nil {
				log.Printf("[Reminder] DB error: %v", err)
				return
			}
			if len(stale) == 0 {
				return
			}

			log.Printf("⏰ %d approved star(s) waiting for delivery for more than %d days", len(stale), days)
			now := time.Now()
			for _, e := range stale {
				if err := s.DB.Model(&models.StarEntry{}).
					Where("id = ?", e.ID).
					Update("reminder_sent_at", now).Error; err != nil {
					log.Printf("[Reminder] Failed to flag entry %s: %v", e.ID, err)
				}
			}
		}),
	)
}
