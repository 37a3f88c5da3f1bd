package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"novafreight-system/internal/coordinator"
	"novafreight-system/internal/platform/apierr"
	"novafreight-system/internal/platform/logger"
)

type StorageHandler struct {
	db    *gorm.DB
	coord *coordinator.Coordinator
	log   *logger.Logger
}

func NewStorageHandler(db *gorm.DB, coord *coordinator.Coordinator, log *logger.Logger) *StorageHandler {
	return &StorageHandler{
		db:    db,
		coord: coord,
		log:   log,
	}
}

func (h *StorageHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/storage/units", h.CreateUnit)
	r.GET("/storage/units/:id", h.GetUnit)
	r.GET("/storage/units", h.ListUnits)
	r.POST("/storage/units/:id/retire", h.RetireUnit)
	r.POST("/storage/units/:id/recompute", h.RecomputeUnit)
	r.GET("/storage/units/:id/allocations", h.ListUnitAllocations)

	r.POST("/storage/transactions", h.RecordTransaction)
	r.GET("/storage/transactions", h.ListTransactions)

	r.GET("/internal/storage_units/:id/exists", h.UnitExists)
	r.GET("/internal/storage_units/:id", h.GetInternalUnit)
}

type CreateUnitRequest struct {
	UnitCode    string `json:"unit_code" binding:"required"`
	Location    string `json:"location"`
	StorageType string `json:"storage_type"`
	MaxMass     string `json:"max_mass" binding:"required"`
	MaxVolume   string `json:"max_volume" binding:"required"`
}

func (h *StorageHandler) CreateUnit(c *gin.Context) {
	var req CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	maxMass, err := decimal.NewFromString(req.MaxMass)
	if err != nil || maxMass.Sign() < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("max_mass must be a non-negative decimal"))
		return
	}
	maxVolume, err := decimal.NewFromString(req.MaxVolume)
	if err != nil || maxVolume.Sign() < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("max_volume must be a non-negative decimal"))
		return
	}

	// A new unit always starts empty.
	unit := StorageUnit{
		UnitCode:      req.UnitCode,
		Location:      req.Location,
		StorageType:   req.StorageType,
		MaxMass:       maxMass.String(),
		MaxVolume:     maxVolume.String(),
		CurrentMass:   decimal.Zero.String(),
		CurrentVolume: decimal.Zero.String(),
		IsActive:      true,
	}

	if err := h.db.Create(&unit).Error; err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("unit_code already exists"))
		return
	}

	h.log.Info("storage unit registered", "unit_id", unit.ID, "unit_code", unit.UnitCode)

	c.JSON(http.StatusCreated, successResponse("Storage unit created successfully", unit))
}

func (h *StorageHandler) GetUnit(c *gin.Context) {
	unitID, ok := parseID(c, "Invalid storage unit ID")
	if !ok {
		return
	}

	var unit StorageUnit
	if err := h.db.First(&unit, unitID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Storage unit not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Storage unit retrieved successfully", unit))
}

type ListUnitsQuery struct {
	Page        int     `form:"page,default=1"`
	PageSize    int     `form:"page_size,default=10"`
	IsActive    *bool   `form:"is_active,omitempty"`
	StorageType *string `form:"storage_type,omitempty"`
	Location    *string `form:"location,omitempty"`
}

func (h *StorageHandler) ListUnits(c *gin.Context) {
	var query ListUnitsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	q := h.db.Model(&StorageUnit{})
	if query.IsActive != nil {
		q = q.Where("is_active = ?", *query.IsActive)
	}
	if query.StorageType != nil {
		q = q.Where("storage_type = ?", *query.StorageType)
	}
	if query.Location != nil {
		q = q.Where("location ILIKE ?", "%"+*query.Location+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	var units []StorageUnit
	offset := (query.Page - 1) * query.PageSize
	if err := q.Offset(offset).Limit(query.PageSize).Find(&units).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Storage units retrieved successfully", units, gin.H{
		"total":     total,
		"page":      query.Page,
		"page_size": query.PageSize,
	}))
}

// RetireUnit deactivates a unit. Units are never deleted: allocation history
// and the transaction log keep referencing them.
func (h *StorageHandler) RetireUnit(c *gin.Context) {
	unitID, ok := parseID(c, "Invalid storage unit ID")
	if !ok {
		return
	}

	var unit StorageUnit
	if err := h.db.First(&unit, unitID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Storage unit not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	unit.IsActive = false
	if err := h.db.Save(&unit).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("error retiring storage unit"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Storage unit retired", unit))
}

func (h *StorageHandler) RecomputeUnit(c *gin.Context) {
	unitID, ok := parseID(c, "Invalid storage unit ID")
	if !ok {
		return
	}

	unit, err := h.coord.RecomputeUnit(c.Request.Context(), unitID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Storage unit usage recomputed", gin.H{
		"id":             unit.ID,
		"current_mass":   unit.CurrentMass.String(),
		"current_volume": unit.CurrentVolume.String(),
	}))
}

func (h *StorageHandler) ListUnitAllocations(c *gin.Context) {
	unitID, ok := parseID(c, "Invalid storage unit ID")
	if !ok {
		return
	}

	var allocations []CargoAllocation
	if err := h.db.Where("storage_unit_id = ?", unitID).Find(&allocations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Allocations retrieved successfully", allocations))
}

// --- Transactions ---

type RecordTransactionRequest struct {
	Type              string `json:"type" binding:"required"`
	CargoID           int64  `json:"cargo_id" binding:"required"`
	Quantity          int64  `json:"quantity"`
	FromStorageUnitID *int64 `json:"from_storage_unit_id,omitempty"`
	ToStorageUnitID   *int64 `json:"to_storage_unit_id,omitempty"`
	FromSpacecraftID  *int64 `json:"from_spacecraft_id,omitempty"`
	ToSpacecraftID    *int64 `json:"to_spacecraft_id,omitempty"`
	PerformedByUserID int64  `json:"performed_by_user_id" binding:"required"`
	Notes             string `json:"notes"`
}

func (h *StorageHandler) RecordTransaction(c *gin.Context) {
	var req RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	txn, err := h.coord.RecordTransaction(c.Request.Context(), coordinator.Request{
		Type:              coordinator.TransactionType(req.Type),
		CargoID:           req.CargoID,
		Quantity:          req.Quantity,
		FromStorageUnitID: req.FromStorageUnitID,
		ToStorageUnitID:   req.ToStorageUnitID,
		FromSpacecraftID:  req.FromSpacecraftID,
		ToSpacecraftID:    req.ToSpacecraftID,
		PerformedByUserID: req.PerformedByUserID,
		Notes:             req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Transaction recorded successfully", txn))
}

type ListTransactionsQuery struct {
	Page     int     `form:"page,default=1"`
	PageSize int     `form:"page_size,default=50"`
	CargoID  *int64  `form:"cargo_id,omitempty"`
	UnitID   *int64  `form:"storage_unit_id,omitempty"`
	Type     *string `form:"type,omitempty"`
}

func (h *StorageHandler) ListTransactions(c *gin.Context) {
	var query ListTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	q := h.db.Model(&CargoTransaction{})
	if query.CargoID != nil {
		q = q.Where("cargo_id = ?", *query.CargoID)
	}
	if query.UnitID != nil {
		q = q.Where("from_storage_unit_id = ? OR to_storage_unit_id = ?", *query.UnitID, *query.UnitID)
	}
	if query.Type != nil {
		q = q.Where("type = ?", *query.Type)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	var transactions []CargoTransaction
	offset := (query.Page - 1) * query.PageSize
	if err := q.Order("transaction_date DESC").Offset(offset).Limit(query.PageSize).
		Find(&transactions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Transactions retrieved successfully", transactions, gin.H{
		"total":     total,
		"page":      query.Page,
		"page_size": query.PageSize,
	}))
}

// --- Internal lookups ---

func (h *StorageHandler) UnitExists(c *gin.Context) {
	unitID, ok := parseID(c, "Invalid storage unit ID")
	if !ok {
		return
	}

	var count int64
	if err := h.db.Model(&StorageUnit{}).Where("id = ? AND is_active = ?", unitID, true).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", gin.H{"exists": count > 0}))
}

func (h *StorageHandler) GetInternalUnit(c *gin.Context) {
	unitID, ok := parseID(c, "Invalid storage unit ID")
	if !ok {
		return
	}

	var unit StorageUnit
	if err := h.db.First(&unit, unitID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Storage unit not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", unit))
}

// respondError maps the typed taxonomy onto HTTP statuses.
func (h *StorageHandler) respondError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("storage request failed", "path", c.FullPath(), "error", err)
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
