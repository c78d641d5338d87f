package services

import (
	"sort"
	"time"

	"troop-badge-system/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Pure aggregation over in-memory collections. All of these functions tolerate
// orphaned references (entry pointing at a participant or template we never
// loaded) by dropping the record from the derived view rather than failing.

// BadgeGroup is one badge's progression for one participant.
type BadgeGroup struct {
	Ref        models.TemplateRef `json:"ref"`
	Name       string             `json:"name"`
	ImageURL   string             `json:"image_url,omitempty"`
	Entries    []models.StarEntry `json:"entries"` // ascending by level
	Stars      int                `json:"stars"`   // approved, delivered or not
	Obtainable int                `json:"obtainable"`
	NextStar   int                `json:"next_star"`
}

// ParticipantRecord is the dashboard row for one participant.
type ParticipantRecord struct {
	Participant      models.Participant `json:"participant"`
	GroupName        string             `json:"group_name,omitempty"`
	Badges           []BadgeGroup       `json:"badges"`
	TotalStars       int                `json:"total_stars"`
	PendingCount     int                `json:"pending_count"`
	AwaitingDelivery int                `json:"awaiting_delivery"`
}

// QueueItem is a star entry joined with display names, for the approval and
// delivery work queues.
type QueueItem struct {
	EntryID         string     `json:"entry_id"`
	ParticipantID   string     `json:"participant_id"`
	ParticipantName string     `json:"participant_name"`
	GroupName       string     `json:"group_name,omitempty"`
	BadgeName       string     `json:"badge_name"`
	Level           int        `json:"level"`
	StarType        string     `json:"star_type"`
	Objectif        string     `json:"objectif"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	DateObtention   *time.Time `json:"date_obtention,omitempty"`
}

// BuildParticipantRecords folds the flat collections into per-participant
// progression views. Badge groups keep the insertion order of their first
// entry; entries inside a group are sorted ascending by level.
func BuildParticipantRecords(participants []models.Participant, groups []models.Group, templates []models.BadgeTemplate, entries []models.StarEntry) []ParticipantRecord {
	tplByID := templateIndex(templates)
	groupByID := make(map[string]models.Group, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}

	byParticipant := make(map[string][]models.StarEntry, len(participants))
	for _, e := range entries {
		byParticipant[e.ParticipantID] = append(byParticipant[e.ParticipantID], e)
	}

	records := make([]ParticipantRecord, 0, len(participants))
	for _, p := range participants {
		rec := ParticipantRecord{Participant: p, Badges: []BadgeGroup{}}
		if p.GroupID != nil {
			if g, ok := groupByID[*p.GroupID]; ok {
				rec.GroupName = g.Name
			}
		}

		// Ordered grouping by template ref: map for lookup, slice for order.
		groupIdx := make(map[string]int)
		for _, e := range byParticipant[p.ID] {
			ref := models.RefForEntry(&e)
			if ref.IsKnown() {
				if _, ok := tplByID[ref.TemplateID]; !ok {
					continue // orphaned template reference
				}
			}
			idx, ok := groupIdx[ref.Key()]
			if !ok {
				idx = len(rec.Badges)
				groupIdx[ref.Key()] = idx
				rec.Badges = append(rec.Badges, newBadgeGroup(ref, tplByID))
			}
			bg := &rec.Badges[idx]
			bg.Entries = append(bg.Entries, e)

			switch e.Status {
			case models.StarStatusApproved:
				bg.Stars++
				rec.TotalStars++
				if e.DeliveredAt == nil {
					rec.AwaitingDelivery++
				}
			case models.StarStatusPending:
				rec.PendingCount++
			}
		}

		for i := range rec.Badges {
			bg := &rec.Badges[i]
			sort.SliceStable(bg.Entries, func(a, b int) bool {
				return bg.Entries[a].Etoiles < bg.Entries[b].Etoiles
			})
			next, max := nextLevel(bg.Ref, bg.Entries, tplByID)
			bg.NextStar = next
			if !bg.Ref.IsKnown() {
				bg.Obtainable = max
			}
		}

		records = append(records, rec)
	}
	return records
}

func newBadgeGroup(ref models.TemplateRef, tplByID map[string]models.BadgeTemplate) BadgeGroup {
	bg := BadgeGroup{Ref: ref, Obtainable: models.DefaultObtainableStars}
	if ref.IsKnown() {
		if tpl, ok := tplByID[ref.TemplateID]; ok {
			bg.Name = tpl.Name
			bg.ImageURL = tpl.ImageURL
			bg.Obtainable = tpl.ObtainableStars()
		}
	} else {
		bg.Name = ref.DisplayTerritory()
	}
	return bg
}

// NextEligibleLevel answers "which star can this participant submit next" for
// one badge. Pending entries reserve their level, so the highest recorded
// level counts regardless of status; rejected entries free their level only
// once deleted (a rejected level can be re-attempted after cleanup).
func NextEligibleLevel(participantID string, ref models.TemplateRef, templates []models.BadgeTemplate, entries []models.StarEntry) (nextStar, maxStars int) {
	tplByID := templateIndex(templates)
	var own []models.StarEntry
	for _, e := range entries {
		if e.ParticipantID == participantID && models.RefForEntry(&e).Key() == ref.Key() {
			own = append(own, e)
		}
	}
	return nextLevel(ref, own, tplByID)
}

func nextLevel(ref models.TemplateRef, own []models.StarEntry, tplByID map[string]models.BadgeTemplate) (nextStar, maxStars int) {
	highest := 0
	for _, e := range own {
		if e.Etoiles > highest {
			highest = e.Etoiles
		}
	}

	maxStars = models.DefaultObtainableStars
	if ref.IsKnown() {
		if tpl, ok := tplByID[ref.TemplateID]; ok {
			maxStars = tpl.ObtainableStars()
		}
	} else if highest > maxStars {
		// ad-hoc territories have no configured cap, the record sets it
		maxStars = highest
	}

	nextStar = highest + 1
	if nextStar > maxStars {
		nextStar = maxStars
	}
	if nextStar < 1 {
		nextStar = 1
	}
	return nextStar, maxStars
}

// PendingApprovalQueue lists every pending entry with display names joined
// in, in stable input order. Orphaned entries are dropped.
func PendingApprovalQueue(entries []models.StarEntry, participants []models.Participant, groups []models.Group, templates []models.BadgeTemplate) []QueueItem {
	return buildQueue(entries, participants, groups, templates, func(e *models.StarEntry) bool {
		return e.Status == models.StarStatusPending
	})
}

// DeliveryQueue lists approved entries that still need to be handed out.
func DeliveryQueue(entries []models.StarEntry, participants []models.Participant, groups []models.Group, templates []models.BadgeTemplate) []QueueItem {
	return buildQueue(entries, participants, groups, templates, func(e *models.StarEntry) bool {
		return e.Status == models.StarStatusApproved && e.DeliveredAt == nil
	})
}

func buildQueue(entries []models.StarEntry, participants []models.Participant, groups []models.Group, templates []models.BadgeTemplate, keep func(*models.StarEntry) bool) []QueueItem {
	tplByID := templateIndex(templates)
	partByID := make(map[string]models.Participant, len(participants))
	for _, p := range participants {
		partByID[p.ID] = p
	}
	groupByID := make(map[string]models.Group, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}

	items := []QueueItem{}
	for _, e := range entries {
		if !keep(&e) {
			continue
		}
		p, ok := partByID[e.ParticipantID]
		if !ok {
			continue // orphaned
		}
		ref := models.RefForEntry(&e)
		badgeName := ref.DisplayTerritory()
		if ref.IsKnown() {
			tpl, ok := tplByID[ref.TemplateID]
			if !ok {
				continue // orphaned
			}
			badgeName = tpl.Name
		}
		item := QueueItem{
			EntryID:         e.ID,
			ParticipantID:   p.ID,
			ParticipantName: p.DisplayName(),
			BadgeName:       badgeName,
			Level:           e.Etoiles,
			StarType:        e.StarType,
			Objectif:        e.Objectif,
			SubmittedAt:     e.CreatedAt,
			DateObtention:   e.DateObtention,
		}
		if p.GroupID != nil {
			if g, ok := groupByID[*p.GroupID]; ok {
				item.GroupName = g.Name
			}
		}
		items = append(items, item)
	}
	return items
}

// Sort keys accepted by SortRecords.
const (
	SortByName  = "name"
	SortByGroup = "group"
	SortByStars = "stars"
)

// nameCollator compares names the way the troop reads them (accents fold,
// case ignored). French rules cover the roster's accented names.
var nameCollator = collate.New(language.French, collate.IgnoreCase)

// SortRecords sorts the dashboard rows in place. The sort is stable and ties
// on the primary key fall back to last name, so equal rows never flip between
// refreshes. Unknown keys sort by name.
func SortRecords(records []ParticipantRecord, key string, desc bool) {
	less := func(a, b *ParticipantRecord) bool {
		switch key {
		case SortByGroup:
			if c := nameCollator.CompareString(a.GroupName, b.GroupName); c != 0 {
				return c < 0
			}
		case SortByStars:
			if a.TotalStars != b.TotalStars {
				return a.TotalStars < b.TotalStars
			}
		default: // SortByName
			if c := nameCollator.CompareString(a.Participant.DisplayName(), b.Participant.DisplayName()); c != 0 {
				return c < 0
			}
		}
		return nameCollator.CompareString(a.Participant.LastName, b.Participant.LastName) < 0
	}

	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(&records[j], &records[i])
		}
		return less(&records[i], &records[j])
	})
}

func templateIndex(templates []models.BadgeTemplate) map[string]models.BadgeTemplate {
	idx := make(map[string]models.BadgeTemplate, len(templates))
	for _, t := range templates {
		idx[t.ID] = t
	}
	return idx
}
