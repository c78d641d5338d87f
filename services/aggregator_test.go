package services

import (
	"testing"
	"time"

	"troop-badge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func participant(id, first, last string, groupID *string) models.Participant {
	return models.Participant{ID: id, FirstName: first, LastName: last, GroupID: groupID}
}

func template(id, name string, levelCount int) models.BadgeTemplate {
	return models.BadgeTemplate{ID: id, Name: name, Slug: id, LevelCount: levelCount}
}

func entry(id, participantID string, templateID *string, territory string, level int, status string, deliveredAt *time.Time) models.StarEntry {
	return models.StarEntry{
		ID:              id,
		ParticipantID:   participantID,
		BadgeTemplateID: templateID,
		Territoire:      territory,
		Etoiles:         level,
		StarType:        models.StarTypeProie,
		Status:          status,
		Objectif:        "objectif",
		DeliveredAt:     deliveredAt,
	}
}

func TestBuildParticipantRecords(t *testing.T) {
	delivered := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sizaine := "g1"

	participants := []models.Participant{
		participant("p1", "Léa", "Martin", &sizaine),
		participant("p2", "Noah", "Dubois", nil),
	}
	groups := []models.Group{{ID: "g1", Name: "Castors"}}
	templates := []models.BadgeTemplate{template("t1", "Orientation", 3)}
	entries := []models.StarEntry{
		entry("e1", "p1", strPtr("t1"), "", 2, models.StarStatusApproved, nil), // out of order on purpose
		entry("e2", "p1", strPtr("t1"), "", 1, models.StarStatusApproved, &delivered),
		entry("e3", "p1", nil, "cuisine-trappeur", 1, models.StarStatusPending, nil),
		entry("e4", "p2", strPtr("t1"), "", 1, models.StarStatusRejected, nil),
	}

	records := BuildParticipantRecords(participants, groups, templates, entries)
	require.Len(t, records, 2)

	p1 := records[0]
	assert.Equal(t, "Castors", p1.GroupName)
	assert.Equal(t, 2, p1.TotalStars)
	assert.Equal(t, 1, p1.PendingCount)
	assert.Equal(t, 1, p1.AwaitingDelivery)

	require.Len(t, p1.Badges, 2)
	orientation := p1.Badges[0] // insertion order: t1 appeared first
	assert.Equal(t, "Orientation", orientation.Name)
	assert.Equal(t, 2, orientation.Stars)
	assert.Equal(t, 3, orientation.Obtainable)
	assert.Equal(t, 3, orientation.NextStar)
	// entries sorted ascending by level despite input order
	require.Len(t, orientation.Entries, 2)
	assert.Equal(t, 1, orientation.Entries[0].Etoiles)
	assert.Equal(t, 2, orientation.Entries[1].Etoiles)

	territory := p1.Badges[1]
	assert.False(t, territory.Ref.IsKnown())
	assert.Equal(t, "cuisine trappeur", territory.Name)
	assert.Equal(t, 0, territory.Stars)
	assert.Equal(t, models.DefaultObtainableStars, territory.Obtainable)

	p2 := records[1]
	assert.Equal(t, 0, p2.TotalStars) // rejected entries never count
	assert.Equal(t, 0, p2.PendingCount)
	require.Len(t, p2.Badges, 1)
	assert.Equal(t, 0, p2.Badges[0].Stars)
}

func TestBuildParticipantRecordsStarConservation(t *testing.T) {
	participants := []models.Participant{
		participant("p1", "A", "A", nil),
		participant("p2", "B", "B", nil),
	}
	templates := []models.BadgeTemplate{
		template("t1", "Orientation", 5),
		template("t2", "Nature", 5),
	}
	entries := []models.StarEntry{
		entry("e1", "p1", strPtr("t1"), "", 1, models.StarStatusApproved, nil),
		entry("e2", "p1", strPtr("t2"), "", 1, models.StarStatusApproved, nil),
		entry("e3", "p1", strPtr("t2"), "", 2, models.StarStatusApproved, nil),
		entry("e4", "p2", strPtr("t1"), "", 1, models.StarStatusApproved, nil),
		entry("e5", "p2", strPtr("t1"), "", 2, models.StarStatusPending, nil),
	}

	records := BuildParticipantRecords(participants, nil, templates, entries)

	approved := 0
	for _, rec := range records {
		approved += rec.TotalStars
		perBadge := 0
		for _, bg := range rec.Badges {
			perBadge += bg.Stars
		}
		// badge-level counts roll up exactly to the participant total
		assert.Equal(t, rec.TotalStars, perBadge)
	}
	assert.Equal(t, 4, approved)
}

func TestBuildParticipantRecordsDropsOrphans(t *testing.T) {
	participants := []models.Participant{participant("p1", "A", "A", nil)}
	templates := []models.BadgeTemplate{template("t1", "Orientation", 3)}
	entries := []models.StarEntry{
		entry("e1", "p1", strPtr("t1"), "", 1, models.StarStatusApproved, nil),
		entry("e2", "ghost", strPtr("t1"), "", 1, models.StarStatusApproved, nil), // unknown participant
		entry("e3", "p1", strPtr("deleted-tpl"), "", 1, models.StarStatusApproved, nil),
	}

	records := BuildParticipantRecords(participants, nil, templates, entries)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].TotalStars)
	require.Len(t, records[0].Badges, 1)
	assert.Equal(t, "Orientation", records[0].Badges[0].Name)
}

func TestNextEligibleLevel(t *testing.T) {
	templates := []models.BadgeTemplate{template("t1", "Orientation", 3)}

	t.Run("no entries starts at one", func(t *testing.T) {
		next, max := NextEligibleLevel("p1", models.KnownTemplate("t1"), templates, nil)
		assert.Equal(t, 1, next)
		assert.Equal(t, 3, max)
	})

	t.Run("pending entries reserve their level", func(t *testing.T) {
		// level 1 approved, level 2 still pending: the pending entry blocks a
		// duplicate level-2 submission, so next is 3
		entries := []models.StarEntry{
			entry("e1", "p1", strPtr("t1"), "", 1, models.StarStatusApproved, nil),
			entry("e2", "p1", strPtr("t1"), "", 2, models.StarStatusPending, nil),
		}
		next, max := NextEligibleLevel("p1", models.KnownTemplate("t1"), templates, entries)
		assert.Equal(t, 3, next)
		assert.Equal(t, 3, max)
	})

	t.Run("capped at max stars", func(t *testing.T) {
		entries := []models.StarEntry{
			entry("e1", "p1", strPtr("t1"), "", 3, models.StarStatusApproved, nil),
		}
		next, max := NextEligibleLevel("p1", models.KnownTemplate("t1"), templates, entries)
		assert.Equal(t, 3, next)
		assert.Equal(t, 3, max)
	})

	t.Run("other participants do not interfere", func(t *testing.T) {
		entries := []models.StarEntry{
			entry("e1", "p2", strPtr("t1"), "", 3, models.StarStatusApproved, nil),
		}
		next, _ := NextEligibleLevel("p1", models.KnownTemplate("t1"), templates, entries)
		assert.Equal(t, 1, next)
	})

	t.Run("ad-hoc territory grows its own cap", func(t *testing.T) {
		ref := models.AdHocTerritory("Cuisine Trappeur")
		next, max := NextEligibleLevel("p1", ref, nil, nil)
		assert.Equal(t, 1, next)
		assert.Equal(t, models.DefaultObtainableStars, max)

		entries := []models.StarEntry{
			entry("e1", "p1", nil, "cuisine-trappeur", 5, models.StarStatusApproved, nil),
		}
		next, max = NextEligibleLevel("p1", ref, nil, entries)
		assert.Equal(t, 5, next)
		assert.Equal(t, 5, max)
	})

	t.Run("monotonically non-decreasing", func(t *testing.T) {
		var entries []models.StarEntry
		prev := 0
		for level := 1; level <= 5; level++ {
			entries = append(entries, entry("e", "p1", strPtr("t1"), "", level, models.StarStatusApproved, nil))
			next, max := NextEligibleLevel("p1", models.KnownTemplate("t1"), templates, entries)
			assert.GreaterOrEqual(t, next, 1)
			assert.LessOrEqual(t, next, max)
			assert.GreaterOrEqual(t, next, prev)
			prev = next
		}
	})
}

func TestPendingApprovalQueue(t *testing.T) {
	participants := []models.Participant{participant("p1", "Léa", "Martin", nil)}
	templates := []models.BadgeTemplate{template("t1", "Orientation", 3)}
	entries := []models.StarEntry{
		entry("e1", "p1", strPtr("t1"), "", 1, models.StarStatusPending, nil),
		entry("e2", "p1", strPtr("t1"), "", 2, models.StarStatusApproved, nil),
		entry("e3", "ghost", strPtr("t1"), "", 1, models.StarStatusPending, nil),
	}

	queue := PendingApprovalQueue(entries, participants, nil, templates)
	require.Len(t, queue, 1)
	assert.Equal(t, "e1", queue[0].EntryID)
	assert.Equal(t, "Léa Martin", queue[0].ParticipantName)
	assert.Equal(t, "Orientation", queue[0].BadgeName)
}

func TestDeliveryQueue(t *testing.T) {
	delivered := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	participants := []models.Participant{participant("p1", "Léa", "Martin", nil)}
	templates := []models.BadgeTemplate{template("t1", "Orientation", 3)}
	entries := []models.StarEntry{
		entry("e1", "p1", strPtr("t1"), "", 1, models.StarStatusApproved, nil),
		entry("e2", "p1", strPtr("t1"), "", 2, models.StarStatusApproved, &delivered),
		entry("e3", "p1", strPtr("t1"), "", 3, models.StarStatusPending, nil),
	}

	queue := DeliveryQueue(entries, participants, nil, templates)
	require.Len(t, queue, 1)
	assert.Equal(t, "e1", queue[0].EntryID)
}

func TestSortRecords(t *testing.T) {
	g1, g2 := "g1", "g2"
	groups := []models.Group{{ID: "g1", Name: "Castors"}, {ID: "g2", Name: "Aigles"}}
	participants := []models.Participant{
		participant("p1", "Zoé", "Bernard", &g1),
		participant("p2", "Élise", "Aubert", &g2),
		participant("p3", "Adam", "Arnaud", &g1),
	}
	templates := []models.BadgeTemplate{template("t1", "Orientation", 5)}
	entries := []models.StarEntry{
		entry("e1", "p1", strPtr("t1"), "", 1, models.StarStatusApproved, nil),
		entry("e2", "p1", strPtr("t1"), "", 2, models.StarStatusApproved, nil),
		entry("e3", "p3", strPtr("t1"), "", 1, models.StarStatusApproved, nil),
	}

	records := BuildParticipantRecords(participants, groups, templates, entries)

	t.Run("by name ascending folds accents", func(t *testing.T) {
		SortRecords(records, SortByName, false)
		assert.Equal(t, "p3", records[0].Participant.ID) // Adam
		assert.Equal(t, "p2", records[1].Participant.ID) // Élise before Zoé
		assert.Equal(t, "p1", records[2].Participant.ID)
	})

	t.Run("by stars descending", func(t *testing.T) {
		SortRecords(records, SortByStars, true)
		assert.Equal(t, 2, records[0].TotalStars)
		assert.Equal(t, "p3", records[1].Participant.ID)
		assert.Equal(t, "p2", records[2].Participant.ID)
	})

	t.Run("by group with last-name tiebreak", func(t *testing.T) {
		SortRecords(records, SortByGroup, false)
		assert.Equal(t, "Aigles", records[0].GroupName)
		// both Castors rows tie on group, last name breaks the tie
		assert.Equal(t, "Arnaud", records[1].Participant.LastName)
		assert.Equal(t, "Bernard", records[2].Participant.LastName)
	})
}
