package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novafreight-system/internal/manifest"
	"novafreight-system/internal/platform/apierr"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/validator"
)

type Spacecraft struct {
	ID               int64  `gorm:"primaryKey" json:"id"`
	CraftCode        string `gorm:"size:100;uniqueIndex" json:"craft_code"`
	Name             string `gorm:"size:255" json:"name"`
	CraftClass       string `gorm:"size:100" json:"craft_class"`
	Status           string `gorm:"size:50" json:"status"`
	CargoMassLimit   string `gorm:"type:decimal(18,3)" json:"cargo_mass_limit"`
	CargoVolumeLimit string `gorm:"type:decimal(18,3)" json:"cargo_volume_limit"`
	IsActive         bool   `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type CargoManifest struct {
	ID               int64  `gorm:"primaryKey" json:"id"`
	SpacecraftID     int64  `gorm:"index" json:"spacecraft_id"`
	CargoID          int64  `gorm:"index" json:"cargo_id"`
	StorageUnitID    int64  `json:"storage_unit_id"`
	Quantity         int64  `json:"quantity"`
	Status           string `gorm:"size:20;index" json:"status"`
	Priority         string `gorm:"size:20" json:"priority"`
	LoadedAt         *time.Time `json:"loaded_at,omitempty"`
	UnloadedAt       *time.Time `json:"unloaded_at,omitempty"`
	LoadedByUserID   *int64     `json:"loaded_by_user_id,omitempty"`
	UnloadedByUserID *int64     `json:"unloaded_by_user_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Spacecraft *Spacecraft `gorm:"foreignKey:SpacecraftID" json:"spacecraft,omitempty"`
}

func MigrateMissionDB(db *gorm.DB) error {
	return db.AutoMigrate(&Spacecraft{}, &CargoManifest{})
}

type MissionHandler struct {
	db        *gorm.DB
	validator *validator.Validator
	log       *logger.Logger
}

func NewMissionHandler(db *gorm.DB, v *validator.Validator, log *logger.Logger) *MissionHandler {
	return &MissionHandler{
		db:        db,
		validator: v,
		log:       log,
	}
}

func (h *MissionHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/spacecraft", h.CreateSpacecraft)
	r.GET("/spacecraft/:id", h.GetSpacecraft)
	r.GET("/spacecraft", h.ListSpacecraft)

	r.POST("/manifests", h.CreateManifest)
	r.GET("/manifests/:id", h.GetManifest)
	r.GET("/manifests", h.ListManifests)
	r.POST("/manifests/:id/status", h.TransitionManifest)

	r.GET("/internal/spacecraft/:id/exists", h.SpacecraftExists)
	r.GET("/internal/spacecraft/:id", h.GetInternalSpacecraft)
}

// --- Spacecraft ---

type CreateSpacecraftRequest struct {
	CraftCode        string `json:"craft_code" binding:"required"`
	Name             string `json:"name" binding:"required"`
	CraftClass       string `json:"craft_class"`
	Status           string `json:"status"`
	CargoMassLimit   string `json:"cargo_mass_limit" binding:"required"`
	CargoVolumeLimit string `json:"cargo_volume_limit" binding:"required"`
}

func (h *MissionHandler) CreateSpacecraft(c *gin.Context) {
	var req CreateSpacecraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	massLimit, err := decimal.NewFromString(req.CargoMassLimit)
	if err != nil || massLimit.Sign() < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("cargo_mass_limit must be a non-negative decimal"))
		return
	}
	volumeLimit, err := decimal.NewFromString(req.CargoVolumeLimit)
	if err != nil || volumeLimit.Sign() < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("cargo_volume_limit must be a non-negative decimal"))
		return
	}

	craft := Spacecraft{
		CraftCode:        req.CraftCode,
		Name:             req.Name,
		CraftClass:       req.CraftClass,
		Status:           req.Status,
		CargoMassLimit:   massLimit.String(),
		CargoVolumeLimit: volumeLimit.String(),
		IsActive:         true,
	}

	if err := h.db.Create(&craft).Error; err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("craft_code already exists"))
		return
	}

	h.log.Info("spacecraft registered", "spacecraft_id", craft.ID, "craft_code", craft.CraftCode)

	c.JSON(http.StatusCreated, successResponse("Spacecraft created successfully", craft))
}

func (h *MissionHandler) GetSpacecraft(c *gin.Context) {
	craftID, ok := parseID(c, "Invalid spacecraft ID")
	if !ok {
		return
	}

	var craft Spacecraft
	if err := h.db.First(&craft, craftID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Spacecraft not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Spacecraft retrieved successfully", craft))
}

type ListSpacecraftQuery struct {
	Page       int     `form:"page,default=1"`
	PageSize   int     `form:"page_size,default=10"`
	IsActive   *bool   `form:"is_active,omitempty"`
	CraftClass *string `form:"craft_class,omitempty"`
}

func (h *MissionHandler) ListSpacecraft(c *gin.Context) {
	var query ListSpacecraftQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	q := h.db.Model(&Spacecraft{})
	if query.IsActive != nil {
		q = q.Where("is_active = ?", *query.IsActive)
	}
	if query.CraftClass != nil {
		q = q.Where("craft_class = ?", *query.CraftClass)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	var craft []Spacecraft
	offset := (query.Page - 1) * query.PageSize
	if err := q.Offset(offset).Limit(query.PageSize).Find(&craft).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Spacecraft retrieved successfully", craft, gin.H{
		"total":     total,
		"page":      query.Page,
		"page_size": query.PageSize,
	}))
}

// --- Manifests ---

type CreateManifestRequest struct {
	SpacecraftID    int64  `json:"spacecraft_id" binding:"required"`
	CargoID         int64  `json:"cargo_id" binding:"required"`
	StorageUnitID   int64  `json:"storage_unit_id" binding:"required"`
	Quantity        int64  `json:"quantity" binding:"required"`
	Priority        string `json:"priority"`
	CreatedByUserID int64  `json:"created_by_user_id" binding:"required"`
}

func (h *MissionHandler) CreateManifest(c *gin.Context) {
	var req CreateManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	if req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("quantity must be greater than 0"))
		return
	}

	priority := manifest.Priority(req.Priority)
	if req.Priority == "" {
		priority = manifest.PriorityNormal
	}
	if !priority.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse("unknown priority "+req.Priority))
		return
	}

	// Spacecraft rows live here; everything else is cross-service and goes
	// through the resilient validator. Any failure rejects the whole create.
	var count int64
	if err := h.db.Model(&Spacecraft{}).Where("id = ? AND is_active = ?", req.SpacecraftID, true).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}
	if count == 0 {
		h.respondError(c, apierr.NotFound("spacecraft", req.SpacecraftID))
		return
	}

	if err := h.validator.ValidateRefs(c.Request.Context(),
		validator.Ref{Kind: validator.KindCargo, ID: req.CargoID},
		validator.Ref{Kind: validator.KindStorageUnit, ID: req.StorageUnitID},
		validator.Ref{Kind: validator.KindUser, ID: req.CreatedByUserID},
	); err != nil {
		h.respondError(c, err)
		return
	}

	m := CargoManifest{
		SpacecraftID:  req.SpacecraftID,
		CargoID:       req.CargoID,
		StorageUnitID: req.StorageUnitID,
		Quantity:      req.Quantity,
		Status:        string(manifest.StatusPending),
		Priority:      string(priority),
	}

	if err := h.db.Create(&m).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("error creating manifest"))
		return
	}

	h.log.Info("manifest created", "manifest_id", m.ID,
		"spacecraft_id", m.SpacecraftID, "cargo_id", m.CargoID)

	c.JSON(http.StatusCreated, successResponse("Manifest created successfully", m))
}

func (h *MissionHandler) GetManifest(c *gin.Context) {
	manifestID, ok := parseID(c, "Invalid manifest ID")
	if !ok {
		return
	}

	var m CargoManifest
	if err := h.db.Preload("Spacecraft").First(&m, manifestID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Manifest not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Manifest retrieved successfully", m))
}

type ListManifestsQuery struct {
	Page         int     `form:"page,default=1"`
	PageSize     int     `form:"page_size,default=10"`
	SpacecraftID *int64  `form:"spacecraft_id,omitempty"`
	Status       *string `form:"status,omitempty"`
	Priority     *string `form:"priority,omitempty"`
}

func (h *MissionHandler) ListManifests(c *gin.Context) {
	var query ListManifestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	q := h.db.Model(&CargoManifest{})
	if query.SpacecraftID != nil {
		q = q.Where("spacecraft_id = ?", *query.SpacecraftID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.Priority != nil {
		q = q.Where("priority = ?", *query.Priority)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	var manifests []CargoManifest
	offset := (query.Page - 1) * query.PageSize
	if err := q.Offset(offset).Limit(query.PageSize).Find(&manifests).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Manifests retrieved successfully", manifests, gin.H{
		"total":     total,
		"page":      query.Page,
		"page_size": query.PageSize,
	}))
}

type TransitionManifestRequest struct {
	Status string `json:"status" binding:"required"`
	UserID int64  `json:"user_id" binding:"required"`
}

// TransitionManifest walks the manifest forward one step. The row is locked
// for the duration so two concurrent transitions cannot both succeed.
func (h *MissionHandler) TransitionManifest(c *gin.Context) {
	manifestID, ok := parseID(c, "Invalid manifest ID")
	if !ok {
		return
	}

	var req TransitionManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	var m CargoManifest
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&m, manifestID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierr.NotFound("manifest", manifestID)
			}
			return err
		}

		next, err := manifest.Transition(manifest.Status(m.Status), manifest.Status(req.Status))
		if err != nil {
			return err
		}

		now := time.Now()
		m.Status = string(next)
		switch next {
		case manifest.StatusLoaded:
			m.LoadedAt = &now
			m.LoadedByUserID = &req.UserID
		case manifest.StatusUnloaded:
			m.UnloadedAt = &now
			m.UnloadedByUserID = &req.UserID
		}

		return tx.Save(&m).Error
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Info("manifest transitioned", "manifest_id", m.ID, "status", m.Status)

	c.JSON(http.StatusOK, successResponse("Manifest status updated", m))
}

// --- Internal lookups ---

func (h *MissionHandler) SpacecraftExists(c *gin.Context) {
	craftID, ok := parseID(c, "Invalid spacecraft ID")
	if !ok {
		return
	}

	var count int64
	if err := h.db.Model(&Spacecraft{}).Where("id = ? AND is_active = ?", craftID, true).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", gin.H{"exists": count > 0}))
}

func (h *MissionHandler) GetInternalSpacecraft(c *gin.Context) {
	craftID, ok := parseID(c, "Invalid spacecraft ID")
	if !ok {
		return
	}

	var craft Spacecraft
	if err := h.db.First(&craft, craftID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Spacecraft not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", craft))
}

func (h *MissionHandler) respondError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("mission request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, errorWithCodeResponse(apierr.CodeOf(err), err.Error()))
}

func parseID(c *gin.Context, message string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(message))
		return 0, false
	}
	return id, true
}
