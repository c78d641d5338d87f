// workers/roster_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"troop-badge-system/models"
	"troop-badge-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteMember matches the JSON the roster service returns for one member.
type RemoteMember struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Totem     *string   `json:"totem,omitempty"`
	GroupName *string   `json:"group_name,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemberChangesResponse is the top-level structure of the roster service response.
type MemberChangesResponse struct {
	Members []RemoteMember `json:"members"`
}

type RosterSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8600"
	endpointPath string // e.g., "/api/v1/public/members"
	serviceToken string
	httpClient   *http.Client
}

// NewRosterSyncWorker builds the worker that mirrors roster members into the
// local participants table.
func NewRosterSyncWorker(db *gorm.DB, rosterServiceBaseURL, endpointPath, serviceToken string) *RosterSyncWorker {
	return &RosterSyncWorker{
		db:           db,
		interval:     5 * time.Minute,
		baseURL:      rosterServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *RosterSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Roster Sync Worker (roster-service → participants)…")
	go w.run(ctx)
}

func (w *RosterSyncWorker) run(ctx context.Context) {
	// Initial sync backfills the whole roster.
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial roster sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Roster sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Roster Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt among mirrored participants.
func (w *RosterSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM participants WHERE external_id IS NOT NULL AND deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches member changes from the roster service and upserts them
// into the local participants table.
func (w *RosterSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid roster service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	log.Printf("[SYNC] ➡️  GET %s", finalURL)

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to roster service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("roster service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response MemberChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode roster service response: %w", err)
	}

	if len(response.Members) == 0 {
		log.Printf("[SYNC] ✅ No roster changes since %s", sinceStr)
		return nil
	}

	log.Printf("[SYNC] 📥 Processing %d member(s) from roster service…", len(response.Members))

	var upsertCount, errorCount int
	for _, m := range response.Members {
		externalID := m.ID
		participant := models.Participant{
			ExternalID: &externalID,
			FirstName:  m.FirstName,
			LastName:   m.LastName,
		}
		if m.Totem != nil {
			participant.Totem = *m.Totem
		}
		if m.GroupName != nil && *m.GroupName != "" {
			groupID, err := w.ensureGroup(*m.GroupName)
			if err != nil {
				log.Printf("[SYNC] ⚠️ Failed to ensure group %q: %v", *m.GroupName, err)
			} else {
				participant.GroupID = &groupID
			}
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "totem", "group_id", "updated_at",
			}),
		}).Create(&participant).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert participant (external_id=%q): %v", m.ID, err)
			continue
		}
		upsertCount++

		// Members leaving the troop disappear from the badge views; their
		// star entries stay for the records.
		if m.Status == "inactive" || m.Status == "left" {
			if err := w.db.Where("external_id = ?", m.ID).Delete(&models.Participant{}).Error; err != nil {
				log.Printf("[SYNC] ⚠️ Failed to retire participant (external_id=%q): %v", m.ID, err)
			}
		}
	}

	log.Printf("[SYNC] ✅ Synced %d member(s) (%d upserted, %d errors)", len(response.Members), upsertCount, errorCount)
	return nil
}

// ensureGroup resolves a roster group name to the local group id, creating
// the group on first sight.
func (w *RosterSyncWorker) ensureGroup(name string) (string, error) {
	var group models.Group
	err := w.db.Where("name = ?", name).First(&group).Error
	if err == nil {
		return group.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", err
	}
	group = models.Group{ID: uuid.NewString(), Name: name}
	if err := w.db.Create(&group).Error; err != nil {
		return "", err
	}
	return group.ID, nil
}
