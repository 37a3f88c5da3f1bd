package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"novafreight-system/internal/platform/logger"
)

const (
	CARGO_CACHE_PREFIX   = "cargo:"
	CARGO_LIST_CACHE_KEY = "cargo:list"
	CACHE_TTL_MEDIUM     = 30 * time.Minute
)

// Cargo is one catalog entry. Footprints are stored as decimal strings so no
// precision is lost between the catalog and the capacity ledger.
type Cargo struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"size:255;uniqueIndex" json:"name"`
	MassPerUnit   string `gorm:"type:decimal(18,3)" json:"mass_per_unit"`
	VolumePerUnit string `gorm:"type:decimal(18,3)" json:"volume_per_unit"`
	CargoType     string `gorm:"size:100" json:"cargo_type"`
	HazardLevel   int32  `json:"hazard_level"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func MigrateCargoDB(db *gorm.DB) error {
	return db.AutoMigrate(&Cargo{})
}

type CargoHandler struct {
	db    *gorm.DB
	redis *redis.Client
	log   *logger.Logger
}

func NewCargoHandler(db *gorm.DB, redisClient *redis.Client, log *logger.Logger) *CargoHandler {
	return &CargoHandler{
		db:    db,
		redis: redisClient,
		log:   log,
	}
}

func (h *CargoHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/cargo", h.CreateCargo)
	r.GET("/cargo/:id", h.GetCargo)
	r.GET("/cargo", h.ListCargo)
	r.PATCH("/cargo/:id", h.UpdateCargo)

	r.GET("/internal/cargo/:id/exists", h.CargoExists)
	r.GET("/internal/cargo/:id", h.GetInternalCargo)
}

func (h *CargoHandler) invalidateCargoCaches(ctx context.Context, cargoID ...int64) {
	_ = h.redis.Del(ctx, CARGO_LIST_CACHE_KEY)
	for _, id := range cargoID {
		_ = h.redis.Del(ctx, fmt.Sprintf("%s%d", CARGO_CACHE_PREFIX, id))
	}
}

type CreateCargoRequest struct {
	Name          string `json:"name" binding:"required"`
	MassPerUnit   string `json:"mass_per_unit" binding:"required"`
	VolumePerUnit string `json:"volume_per_unit" binding:"required"`
	CargoType     string `json:"cargo_type"`
	HazardLevel   int32  `json:"hazard_level"`
}

type UpdateCargoRequest struct {
	Name        *string `json:"name,omitempty"`
	CargoType   *string `json:"cargo_type,omitempty"`
	HazardLevel *int32  `json:"hazard_level,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// validFootprint accepts only non-negative decimal strings.
func validFootprint(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && d.Sign() >= 0
}

func (h *CargoHandler) CreateCargo(c *gin.Context) {
	var req CreateCargoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	if !validFootprint(req.MassPerUnit) || !validFootprint(req.VolumePerUnit) {
		c.JSON(http.StatusBadRequest, errorResponse("mass_per_unit and volume_per_unit must be non-negative decimals"))
		return
	}

	cargo := Cargo{
		Name:          req.Name,
		MassPerUnit:   req.MassPerUnit,
		VolumePerUnit: req.VolumePerUnit,
		CargoType:     req.CargoType,
		HazardLevel:   req.HazardLevel,
		IsActive:      true,
	}

	if err := h.db.Create(&cargo).Error; err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("cargo name already exists"))
		return
	}

	h.invalidateCargoCaches(c.Request.Context())
	h.log.Info("cargo created", "cargo_id", cargo.ID, "name", cargo.Name)

	c.JSON(http.StatusCreated, successResponse("Cargo created successfully", cargo))
}

func (h *CargoHandler) GetCargo(c *gin.Context) {
	cargoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid cargo ID"))
		return
	}

	cargo, found, err := h.loadCargo(c.Request.Context(), cargoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, errorResponse("Cargo not found"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Cargo retrieved successfully", cargo))
}

type ListCargoQuery struct {
	Page       int     `form:"page,default=1"`
	PageSize   int     `form:"page_size,default=10"`
	IsActive   *bool   `form:"is_active,omitempty"`
	CargoType  *string `form:"cargo_type,omitempty"`
	SearchTerm *string `form:"search,omitempty"`
}

func (h *CargoHandler) ListCargo(c *gin.Context) {
	var query ListCargoQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	q := h.db.Model(&Cargo{})
	if query.IsActive != nil {
		q = q.Where("is_active = ?", *query.IsActive)
	}
	if query.CargoType != nil {
		q = q.Where("cargo_type = ?", *query.CargoType)
	}
	if query.SearchTerm != nil {
		searchTerm := "%" + *query.SearchTerm + "%"
		q = q.Where("name ILIKE ? OR cargo_type ILIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	var items []Cargo
	offset := (query.Page - 1) * query.PageSize
	if err := q.Offset(offset).Limit(query.PageSize).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Cargo retrieved successfully", items, gin.H{
		"total":     total,
		"page":      query.Page,
		"page_size": query.PageSize,
	}))
}

func (h *CargoHandler) UpdateCargo(c *gin.Context) {
	cargoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid cargo ID"))
		return
	}

	var req UpdateCargoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	var cargo Cargo
	if err := h.db.First(&cargo, cargoID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Cargo not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	// Footprints are immutable once units are allocated against them; only
	// descriptive fields may change.
	if req.Name != nil {
		cargo.Name = *req.Name
	}
	if req.CargoType != nil {
		cargo.CargoType = *req.CargoType
	}
	if req.HazardLevel != nil {
		cargo.HazardLevel = *req.HazardLevel
	}
	if req.IsActive != nil {
		cargo.IsActive = *req.IsActive
	}

	if err := h.db.Save(&cargo).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("error updating cargo"))
		return
	}

	h.invalidateCargoCaches(c.Request.Context(), cargo.ID)

	c.JSON(http.StatusOK, successResponse("Cargo updated successfully", cargo))
}

// --- Internal lookups ---

func (h *CargoHandler) CargoExists(c *gin.Context) {
	cargoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid cargo ID"))
		return
	}

	var count int64
	if err := h.db.Model(&Cargo{}).Where("id = ? AND is_active = ?", cargoID, true).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", gin.H{"exists": count > 0}))
}

func (h *CargoHandler) GetInternalCargo(c *gin.Context) {
	cargoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid cargo ID"))
		return
	}

	cargo, found, err := h.loadCargo(c.Request.Context(), cargoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, errorResponse("Cargo not found"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", cargo))
}

// loadCargo reads through the redis cache.
func (h *CargoHandler) loadCargo(ctx context.Context, cargoID int64) (*Cargo, bool, error) {
	cacheKey := fmt.Sprintf("%s%d", CARGO_CACHE_PREFIX, cargoID)

	if raw, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
		var cached Cargo
		if json.Unmarshal([]byte(raw), &cached) == nil {
			return &cached, true, nil
		}
	}

	var cargo Cargo
	if err := h.db.First(&cargo, cargoID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	if raw, err := json.Marshal(cargo); err == nil {
		_ = h.redis.Set(ctx, cacheKey, raw, CACHE_TTL_MEDIUM)
	}
	return &cargo, true, nil
}
