package services

import (
	"testing"
	"time"

	"troop-badge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubmission() SubmitStarInput {
	return SubmitStarInput{
		ParticipantID: "p1",
		TemplateID:    "tpl1",
		Level:         1,
		StarType:      models.StarTypeProie,
		Objectif:      "apprendre trois nœuds",
	}
}

func TestSubmitStar(t *testing.T) {
	t.Run("creates a pending entry", func(t *testing.T) {
		entry, err := SubmitStar(validSubmission(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.StarStatusPending, entry.Status)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, 1, entry.Etoiles)
		require.NotNil(t, entry.BadgeTemplateID)
		assert.Equal(t, "tpl1", *entry.BadgeTemplateID)
		assert.Nil(t, entry.DeliveredAt)
	})

	t.Run("defaults star type to proie", func(t *testing.T) {
		in := validSubmission()
		in.StarType = ""
		entry, err := SubmitStar(in, 1)
		require.NoError(t, err)
		assert.Equal(t, models.StarTypeProie, entry.StarType)
	})

	t.Run("slugs ad-hoc territory names", func(t *testing.T) {
		in := validSubmission()
		in.TemplateID = ""
		in.Territory = "Cuisine Trappeur"
		entry, err := SubmitStar(in, 1)
		require.NoError(t, err)
		assert.Nil(t, entry.BadgeTemplateID)
		assert.Equal(t, "cuisine-trappeur", entry.Territoire)
	})

	tests := []struct {
		name   string
		mutate func(*SubmitStarInput)
	}{
		{"missing participant", func(in *SubmitStarInput) { in.ParticipantID = "" }},
		{"missing template and territory", func(in *SubmitStarInput) { in.TemplateID = "" }},
		{"template and territory both set", func(in *SubmitStarInput) { in.Territory = "orientation" }},
		{"missing objectif", func(in *SubmitStarInput) { in.Objectif = "" }},
		{"level below one", func(in *SubmitStarInput) { in.Level = 0 }},
		{"unknown star type", func(in *SubmitStarInput) { in.StarType = "chasse" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSubmission()
			tt.mutate(&in)
			_, err := SubmitStar(in, in.Level)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}

	t.Run("rejects a stale level", func(t *testing.T) {
		in := validSubmission()
		in.Level = 1
		_, err := SubmitStar(in, 2)
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestCanSubmitFor(t *testing.T) {
	rosterID := "ext-42"
	mirrored := &models.Participant{ID: "p1", ExternalID: &rosterID, FirstName: "Léa", LastName: "Martin"}
	local := &models.Participant{ID: "p2", FirstName: "Noah", LastName: "Dubois"}

	viewOnly := models.CapabilitiesFromRoles([]string{models.RoleParent})
	chef := models.CapabilitiesFromRoles([]string{models.RoleChef})

	t.Run("managers submit for anyone", func(t *testing.T) {
		assert.True(t, CanSubmitFor(chef, "someone-else", mirrored))
		assert.True(t, CanSubmitFor(chef, "", local))
	})

	t.Run("members submit only for themselves", func(t *testing.T) {
		// the forwarded user id matches the participant's roster id
		assert.True(t, CanSubmitFor(viewOnly, "ext-42", mirrored))
		// locally-managed troops: the participant is the caller directly
		assert.True(t, CanSubmitFor(viewOnly, "p2", local))
		// a parent role must not submit for an arbitrary participant
		assert.False(t, CanSubmitFor(viewOnly, "ext-99", mirrored))
		assert.False(t, CanSubmitFor(viewOnly, "ext-42", local))
	})

	t.Run("denied without identity or view capability", func(t *testing.T) {
		assert.False(t, CanSubmitFor(viewOnly, "", mirrored))
		assert.False(t, CanSubmitFor(viewOnly, "ext-42", nil))
		assert.False(t, CanSubmitFor(models.Capabilities{}, "ext-42", mirrored))
	})
}

func pendingEntry(id string) *models.StarEntry {
	return &models.StarEntry{
		ID:            id,
		ParticipantID: "p1",
		Etoiles:       1,
		StarType:      models.StarTypeProie,
		Status:        models.StarStatusPending,
		Objectif:      "objectif",
	}
}

func TestApproveAndRejectAreExclusive(t *testing.T) {
	t.Run("approve from pending", func(t *testing.T) {
		e := pendingEntry("e1")
		require.NoError(t, ApproveStar(e))
		assert.Equal(t, models.StarStatusApproved, e.Status)
		assert.Nil(t, e.DeliveredAt)

		// second approval must not silently double-apply
		assert.ErrorIs(t, ApproveStar(e), models.ErrInvalidTransition)
		assert.Equal(t, models.StarStatusApproved, e.Status)
	})

	t.Run("reject from pending", func(t *testing.T) {
		e := pendingEntry("e2")
		require.NoError(t, RejectStar(e, "objectif non atteint"))
		assert.Equal(t, models.StarStatusRejected, e.Status)
		assert.Equal(t, "objectif non atteint", e.RejectionReason)
		assert.Nil(t, e.DeliveredAt)
	})

	t.Run("reject after approve fails", func(t *testing.T) {
		e := pendingEntry("e3")
		require.NoError(t, ApproveStar(e))
		assert.ErrorIs(t, RejectStar(e, ""), models.ErrInvalidTransition)
	})

	t.Run("approve after reject fails", func(t *testing.T) {
		e := pendingEntry("e4")
		require.NoError(t, RejectStar(e, ""))
		assert.ErrorIs(t, ApproveStar(e), models.ErrInvalidTransition)
	})
}

func TestMarkDeliveredIsIdempotent(t *testing.T) {
	e := pendingEntry("e1")
	require.NoError(t, ApproveStar(e))

	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	changed, err := MarkDelivered(e, first)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, e.DeliveredAt)
	assert.Equal(t, first, *e.DeliveredAt)

	// second delivery is a no-op, the timestamp must not move
	changed, err = MarkDelivered(e, first.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, *e.DeliveredAt)
}

func TestMarkDeliveredRequiresApproval(t *testing.T) {
	pending := pendingEntry("e1")
	_, err := MarkDelivered(pending, time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	rejected := pendingEntry("e2")
	require.NoError(t, RejectStar(rejected, ""))
	_, err = MarkDelivered(rejected, time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestMarkDeliveredBulkPartialSuccess(t *testing.T) {
	approved := pendingEntry("ok")
	require.NoError(t, ApproveStar(approved))

	already := pendingEntry("already")
	require.NoError(t, ApproveStar(already))
	_, err := MarkDelivered(already, time.Now())
	require.NoError(t, err)

	stillPending := pendingEntry("pending")

	report := MarkDeliveredBulk([]*models.StarEntry{approved, already, stillPending}, time.Now())

	assert.Equal(t, []string{"ok"}, report.Delivered)
	assert.Equal(t, []string{"already"}, report.Skipped)
	assert.Contains(t, report.Failed, "pending")
	assert.False(t, report.Ok())

	// ineligible entries never abort the batch
	require.NotNil(t, approved.DeliveredAt)
	assert.Equal(t, models.StarStatusPending, stillPending.Status)
}
