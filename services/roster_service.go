package services

import (
	"errors"
	"strings"

	"troop-badge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RosterService struct {
	DB *gorm.DB
}

func NewRosterService(db *gorm.DB) *RosterService {
	return &RosterService{DB: db}
}

// ListParticipants returns the roster, optionally filtered by group or a
// case-insensitive name search.
func (s *RosterService) ListParticipants(c *fiber.Ctx) error {
	db := s.DB.Model(&models.Participant{})

	if groupID := c.Query("group_id"); groupID != "" {
		db = db.Where("group_id = ?", groupID)
	}
	if q := c.Query("q"); q != "" {
		term := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
		db = db.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(totem) LIKE ?", term, term, term)
	}

	var participants []models.Participant
	if err := db.Order("last_name ASC, first_name ASC").Find(&participants).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list participants", "cause": err.Error()})
	}
	return c.JSON(participants)
}

// CreateParticipant adds a member locally (troops without a roster service).
func (s *RosterService) CreateParticipant(c *fiber.Ctx) error {
	var p models.Participant
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if p.FirstName == "" || p.LastName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "first_name and last_name are required"})
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.GroupID != nil {
		var count int64
		s.DB.Model(&models.Group{}).Where("id = ?", *p.GroupID).Count(&count)
		if count == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown group_id"})
		}
	}
	if err := s.DB.Create(&p).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create participant", "cause": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// UpdateParticipant edits name, totem or group.
func (s *RosterService) UpdateParticipant(c *fiber.Ctx) error {
	id := c.Params("id")

	var existing models.Participant
	if err := s.DB.Where("id = ?", id).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "participant not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
	}

	var body struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Totem     *string `json:"totem"`
		GroupID   *string `json:"group_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}

	if body.FirstName != nil {
		existing.FirstName = *body.FirstName
	}
	if body.LastName != nil {
		existing.LastName = *body.LastName
	}
	if body.Totem != nil {
		existing.Totem = *body.Totem
	}
	if body.GroupID != nil {
		if *body.GroupID == "" {
			existing.GroupID = nil
		} else {
			var count int64
			s.DB.Model(&models.Group{}).Where("id = ?", *body.GroupID).Count(&count)
			if count == 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown group_id"})
			}
			existing.GroupID = body.GroupID
		}
	}

	if err := s.DB.Save(&existing).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update participant", "cause": err.Error()})
	}
	return c.JSON(existing)
}

// DeleteParticipant soft-deletes a member. Their star entries stay in the
// table and fall under the orphaned-record policy in the aggregated views.
func (s *RosterService) DeleteParticipant(c *fiber.Ctx) error {
	id := c.Params("id")
	res := s.DB.Where("id = ?", id).Delete(&models.Participant{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete participant", "cause": res.Error.Error()})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "participant not found"})
	}
	return c.JSON(fiber.Map{"message": "participant deleted", "id": id})
}

// ListGroups returns the troop's units.
func (s *RosterService) ListGroups(c *fiber.Ctx) error {
	var groups []models.Group
	if err := s.DB.Order("name ASC").Find(&groups).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list groups", "cause": err.Error()})
	}
	return c.JSON(groups)
}

// CreateGroup adds a unit.
func (s *RosterService) CreateGroup(c *fiber.Ctx) error {
	var g models.Group
	if err := c.BodyParser(&g); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if g.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if err := s.DB.Create(&g).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create group", "cause": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

// DeleteGroup removes a unit; members keep existing with no group.
func (s *RosterService) DeleteGroup(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.DB.Model(&models.Participant{}).Where("group_id = ?", id).Update("group_id", nil).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to detach members", "cause": err.Error()})
	}
	res := s.DB.Where("id = ?", id).Delete(&models.Group{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete group", "cause": res.Error.Error()})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "group not found"})
	}
	return c.JSON(fiber.Map{"message": "group deleted", "id": id})
}
