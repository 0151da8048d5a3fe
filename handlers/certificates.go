package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"race-prediction-api/middleware"
	"race-prediction-api/models"
	"race-prediction-api/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxCertificateUploadBytes = 10 << 20

type CertificatesHandler struct {
	db    *gorm.DB
	store services.BlobStore
}

func NewCertificatesHandler(db *gorm.DB, store services.BlobStore) *CertificatesHandler {
	return &CertificatesHandler{db: db, store: store}
}

func (h *CertificatesHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var certs []models.Certificate
	err := h.db.Where("user_id = ?", userID).Order("event_date DESC").Find(&certs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": certs})
}

// Add creates a certificate from a multipart form. The scan/photo file is
// optional; the distance label must be one of the known event distances.
func (h *CertificatesHandler) Add(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	label := c.PostForm("distance_label")
	if !models.ValidDistanceLabel(label) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid distance label"})
		return
	}

	eventTitle := c.PostForm("event_title")
	if eventTitle == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_title is required"})
		return
	}

	officialTime, err := strconv.Atoi(c.PostForm("official_time_seconds"))
	if err != nil || officialTime <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "official_time_seconds must be a positive integer"})
		return
	}

	eventDate, err := time.Parse("2006-01-02", c.PostForm("event_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_date must be YYYY-MM-DD"})
		return
	}

	cert := models.Certificate{
		ID:                  uuid.NewString(),
		UserID:              userID,
		EventTitle:          eventTitle,
		DistanceLabel:       label,
		OfficialTimeSeconds: officialTime,
		EventDate:           eventDate,
		Notes:               c.PostForm("notes"),
	}

	if fileHeader, err := c.FormFile("file"); err == nil {
		if fileHeader.Size > maxCertificateUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "certificate file too large"})
			return
		}
		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
			return
		}
		defer f.Close()

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		cert.FilePath = fmt.Sprintf("users/%s/certificates/%s%s", userID, cert.ID, ext)
		if err := h.store.Put(cert.FilePath, f); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store certificate file"})
			return
		}
	}

	if err := h.db.Create(&cert).Error; err != nil {
		if cert.FilePath != "" {
			h.store.Delete(cert.FilePath)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save certificate"})
		return
	}

	c.JSON(http.StatusCreated, cert)
}

// GetFile streams the stored certificate scan.
func (h *CertificatesHandler) GetFile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var cert models.Certificate
	err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&cert).Error
	if err != nil || cert.FilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate file not found"})
		return
	}

	f, err := h.store.Open(cert.FilePath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate file not found"})
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(cert.FilePath)))
	c.Status(http.StatusOK)
	io.Copy(c.Writer, f)
}

func (h *CertificatesHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var cert models.Certificate
	err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&cert).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}

	// blob before row
	if cert.FilePath != "" {
		if err := h.store.Delete(cert.FilePath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete certificate file"})
			return
		}
	}
	if err := h.db.Delete(&cert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete certificate"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "certificate deleted"})
}
