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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/utils"
)

const (
	USER_CACHE_PREFIX = "user:"
	USER_CACHE_TTL    = 30 * time.Minute
)

type Role struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	RoleName    string `gorm:"size:100;uniqueIndex" json:"role_name"`
	AccessLevel int32  `json:"access_level"`
	Permissions *string `gorm:"size:255" json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type User struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"size:100;uniqueIndex" json:"username"`
	Email     string `gorm:"size:100;uniqueIndex" json:"email"`
	Password  string `gorm:"not null" json:"-"`
	Firstname string `gorm:"size:100" json:"firstname"`
	Lastname  string `gorm:"size:100" json:"lastname"`
	RoleID    int64  `json:"role_id"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func MigrateUserDB(db *gorm.DB) error {
	return db.AutoMigrate(&Role{}, &User{})
}

type UserHandler struct {
	db       *gorm.DB
	redis    *redis.Client
	log      *logger.Logger
	tokenTTL time.Duration
}

func NewUserHandler(db *gorm.DB, redisClient *redis.Client, log *logger.Logger, tokenTTL time.Duration) *UserHandler {
	return &UserHandler{
		db:       db,
		redis:    redisClient,
		log:      log,
		tokenTTL: tokenTTL,
	}
}

func (h *UserHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/users/:id", h.GetUser)
	r.GET("/users", h.ListUsers)

	r.GET("/internal/users/:id/exists", h.UserExists)
	r.GET("/internal/users/:id", h.GetInternalUser)
}

type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Firstname string `json:"firstname" binding:"required"`
	Lastname  string `json:"lastname" binding:"required"`
	RoleID    int64  `json:"role_id" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("error hashing password"))
		return
	}

	user := User{
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(pwHash),
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		RoleID:    req.RoleID,
		IsActive:  true,
	}

	if err := h.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("username or email already taken"))
		return
	}

	token, expiresAt, err := utils.GenerateToken(user.ID, user.Username, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("error generating token"))
		return
	}

	h.log.Info("user registered", "user_id", user.ID, "username", user.Username)

	c.JSON(http.StatusCreated, successResponse("User registered successfully", gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
	}))
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	var user User
	if err := h.db.Preload("Role").Where("username = ? AND is_active = ?", req.Username, true).
		First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse("invalid username or password"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse("invalid username or password"))
		return
	}

	token, expiresAt, err := utils.GenerateToken(user.ID, user.Username, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("error generating token"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Login successful", gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
	}))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	var user User
	if err := h.db.Preload("Role").First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("User not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("User retrieved successfully", user))
}

type ListUsersQuery struct {
	Page     int   `form:"page,default=1"`
	PageSize int   `form:"page_size,default=10"`
	IsActive *bool `form:"is_active,omitempty"`
	RoleID   *int64 `form:"role_id,omitempty"`
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	var query ListUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	q := h.db.Model(&User{}).Preload("Role")
	if query.IsActive != nil {
		q = q.Where("is_active = ?", *query.IsActive)
	}
	if query.RoleID != nil {
		q = q.Where("role_id = ?", *query.RoleID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	var users []User
	offset := (query.Page - 1) * query.PageSize
	if err := q.Offset(offset).Limit(query.PageSize).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Users retrieved successfully", users, gin.H{
		"total":     total,
		"page":      query.Page,
		"page_size": query.PageSize,
	}))
}

// --- Internal lookups ---

func (h *UserHandler) UserExists(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	var count int64
	if err := h.db.Model(&User{}).Where("id = ? AND is_active = ?", userID, true).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", gin.H{"exists": count > 0}))
}

func (h *UserHandler) GetInternalUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	user, found, err := h.loadUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("database error"))
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, errorResponse("User not found"))
		return
	}

	c.JSON(http.StatusOK, successResponse("ok", user))
}

// loadUser reads through the redis cache. Password hashes never serialize
// (json:"-"), so cached entries are safe to hand out.
func (h *UserHandler) loadUser(ctx context.Context, userID int64) (*User, bool, error) {
	cacheKey := fmt.Sprintf("%s%d", USER_CACHE_PREFIX, userID)

	if raw, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
		var cached User
		if json.Unmarshal([]byte(raw), &cached) == nil {
			return &cached, true, nil
		}
	}

	var user User
	if err := h.db.First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	if raw, err := json.Marshal(user); err == nil {
		_ = h.redis.Set(ctx, cacheKey, raw, USER_CACHE_TTL)
	}
	return &user, true, nil
}
