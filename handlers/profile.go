package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"race-prediction-api/middleware"
	"race-prediction-api/models"
	"race-prediction-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const maxAvatarUploadBytes = 5 << 20

type ProfileHandler struct {
	db    *gorm.DB
	cache *services.CacheService
	store services.BlobStore
}

func NewProfileHandler(db *gorm.DB, cache *services.CacheService, store services.BlobStore) *ProfileHandler {
	return &ProfileHandler{db: db, cache: cache, store: store}
}

type UpdateProfileRequest struct {
	DisplayName    *string `json:"display_name"`
	UnitPreference *string `json:"unit_preference"`
}

func (h *ProfileHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.UnitPreference != nil {
		if *req.UnitPreference != "metric" && *req.UnitPreference != "imperial" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unit_preference must be metric or imperial"})
			return
		}
		updates["unit_preference"] = *req.UnitPreference
	}
	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
			return
		}
	}

	c.JSON(http.StatusOK, user)
}

func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing avatar file"})
		return
	}
	if fileHeader.Size > maxAvatarUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file too large"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" && ext != ".webp" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported avatar format"})
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	path := fmt.Sprintf("users/%s/avatar%s", userID, ext)
	if err := h.store.Put(path, f); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store avatar"})
		return
	}

	// replaced avatar with a different extension leaves no orphan
	if user.AvatarPath != "" && user.AvatarPath != path {
		h.store.Delete(user.AvatarPath)
	}

	if err := h.db.Model(&user).Update("avatar_path", path).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "avatar updated"})
}

func (h *ProfileHandler) GetAvatar(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var user models.User
	err := h.db.First(&user, "id = ?", userID).Error
	if err != nil || user.AvatarPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "avatar not found"})
		return
	}

	f, err := h.store.Open(user.AvatarPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "avatar not found"})
		return
	}
	defer f.Close()

	c.Status(http.StatusOK)
	io.Copy(c.Writer, f)
}

func (h *ProfileHandler) DeleteAvatar(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if user.AvatarPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "avatar not found"})
		return
	}

	if err := h.store.Delete(user.AvatarPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete avatar"})
		return
	}
	if err := h.db.Model(&user).Update("avatar_path", "").Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "avatar deleted"})
}

// DeleteAccount removes everything the caller owns: blobs first, then runs,
// certificates and finally the user row. Ordering is best effort, not
// transactional. A repeat call finds no user and returns 404.
func (h *ProfileHandler) DeleteAccount(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	if err := h.store.DeleteAll("users/" + userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to delete stored files: %v", err)})
		return
	}
	if err := h.db.Where("user_id = ?", userID).Delete(&models.Run{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to delete runs: %v", err)})
		return
	}
	if err := h.db.Where("user_id = ?", userID).Delete(&models.Certificate{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to delete certificates: %v", err)})
		return
	}
	if err := h.db.Delete(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to delete account: %v", err)})
		return
	}

	go func() {
		ctx := context.Background()
		h.cache.DeletePrefix(ctx, "runs:"+userID)
		h.cache.Delete(ctx, "stats:"+userID)
	}()

	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}
