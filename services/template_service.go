package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"troop-badge-system/models"
	"troop-badge-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type TemplateService struct {
	DB *gorm.DB
}

func NewTemplateService(db *gorm.DB) *TemplateService {
	return &TemplateService{DB: db}
}

// ListTemplates returns every badge template with its levels.
func (s *TemplateService) ListTemplates(c *fiber.Ctx) error {
	var templates []models.BadgeTemplate
	if err := s.DB.Preload("Levels", func(db *gorm.DB) *gorm.DB {
		return db.Order("badge_levels.level ASC")
	}).Order("name ASC").Find(&templates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list templates", "cause": err.Error()})
	}
	return c.JSON(templates)
}

// GetTemplate returns one template with its levels.
func (s *TemplateService) GetTemplate(c *fiber.Ctx) error {
	var tpl models.BadgeTemplate
	if err := s.DB.Preload("Levels", func(db *gorm.DB) *gorm.DB {
		return db.Order("badge_levels.level ASC")
	}).Where("id = ?", c.Params("id")).First(&tpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "template not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
	}
	return c.JSON(tpl)
}

// CreateTemplate adds a badge template, optionally with its levels inline.
func (s *TemplateService) CreateTemplate(c *fiber.Ctx) error {
	var body struct {
		Name       string `json:"name"`
		LevelCount int    `json:"level_count"`
		Levels     []struct {
			Level        int    `json:"level"`
			Title        string `json:"title"`
			Requirements string `json:"requirements"`
		} `json:"levels"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if body.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if body.LevelCount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "level_count must be >= 0"})
	}

	tpl := models.BadgeTemplate{
		ID:         uuid.NewString(),
		Name:       body.Name,
		Slug:       slug.Make(body.Name),
		LevelCount: body.LevelCount,
	}
	for _, lvl := range body.Levels {
		if lvl.Level < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("invalid level %d", lvl.Level)})
		}
		tpl.Levels = append(tpl.Levels, models.BadgeLevel{
			ID:              uuid.NewString(),
			BadgeTemplateID: tpl.ID,
			Level:           lvl.Level,
			Title:           lvl.Title,
			Requirements:    lvl.Requirements,
		})
	}

	if err := s.DB.Create(&tpl).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create template", "cause": err.Error()})
	}
	log.Printf("🏅 Badge template created: %s (%s)", tpl.Name, tpl.Slug)
	return c.Status(fiber.StatusCreated).JSON(tpl)
}

// UpdateTemplate edits name and level count. Lowering the level count below
// already-approved stars is refused to keep the obtainable invariant honest.
func (s *TemplateService) UpdateTemplate(c *fiber.Ctx) error {
	id := c.Params("id")

	var tpl models.BadgeTemplate
	if err := s.DB.Where("id = ?", id).First(&tpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "template not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
	}

	var body struct {
		Name       *string `json:"name"`
		LevelCount *int    `json:"level_count"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}

	if body.LevelCount != nil {
		var maxApproved int
		row := s.DB.Model(&models.StarEntry{}).
			Where("badge_template_id = ? AND status = ?", id, models.StarStatusApproved).
			Select("COALESCE(MAX(etoiles), 0)").Row()
		if err := row.Scan(&maxApproved); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
		}
		if *body.LevelCount > 0 && *body.LevelCount < maxApproved {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": fmt.Sprintf("level_count %d is below the highest approved star (%d)", *body.LevelCount, maxApproved),
			})
		}
		tpl.LevelCount = *body.LevelCount
	}
	if body.Name != nil && *body.Name != "" {
		tpl.Name = *body.Name
		tpl.Slug = slug.Make(*body.Name)
	}

	if err := s.DB.Save(&tpl).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update template", "cause": err.Error()})
	}
	return c.JSON(tpl)
}

// DeleteTemplate soft-deletes a template. Existing star entries keep their
// template id and become orphaned in the views until an admin reassigns them.
func (s *TemplateService) DeleteTemplate(c *fiber.Ctx) error {
	id := c.Params("id")
	res := s.DB.Where("id = ?", id).Delete(&models.BadgeTemplate{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete template", "cause": res.Error.Error()})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "template not found"})
	}
	return c.JSON(fiber.Map{"message": "template deleted", "id": id})
}

// UploadImage stores the badge artwork on R2 (or the local uploads dir when
// R2 is not configured) and saves the public URL on the template.
func (s *TemplateService) UploadImage(c *fiber.Ctx) error {
	id := c.Params("id")

	var tpl models.BadgeTemplate
	if err := s.DB.Where("id = ?", id).First(&tpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "template not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "image is required"})
	}
	if fileHeader.Size > 10*1024*1024 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "image too large (max 10MB)"})
	}

	ext := filepath.Ext(fileHeader.Filename)
	key := fmt.Sprintf("badges/%s%s", tpl.Slug, ext)

	var imageURL string
	if utils.R2Enabled() {
		imageURL, err = utils.UploadFileToR2(fileHeader, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to upload image", "cause": err.Error()})
		}
	} else {
		destPath := utils.GetUploadPath(filepath.Base(key))
		if err := utils.SaveFile(fileHeader, destPath); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save image", "cause": err.Error()})
		}
		imageURL = "/uploads/" + filepath.Base(key)
	}

	tpl.ImageURL = imageURL
	if err := s.DB.Save(&tpl).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save image URL", "cause": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "image uploaded", "image_url": imageURL})
}
