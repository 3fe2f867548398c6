package partnersync

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"gorm.io/gorm"
)

// StatusHandler reports the connection state for one (location, provider).
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationRef := strings.TrimSpace(c.Query("locationRef"))
		provider := strings.TrimSpace(c.Query("provider"))
		if locationRef == "" || provider == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locationRef and provider are required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := models.GetPartnerConnection(c.Request.Context(), db, locationRef, provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				LocationRef: locationRef,
				Provider:    provider,
				Status:      models.PartnerStatusDisconnected,
				Modules:     DefaultModules(),
			})
			return
		}

		c.JSON(http.StatusOK, StatusResponse{
			LocationRef:       conn.LocationRef,
			Provider:          conn.Provider,
			Status:            conn.Status,
			LastSyncAt:        formatTime(conn.LastSyncAt),
			LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
			Modules:           DecodeModules(conn.SettingsJSON),
		})
	}
}

// ConnectHandler stores or replaces the credential object for a
// (location, provider) pair.
func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB().WithContext(ctx)

		conn, err := models.GetPartnerConnection(ctx, db, req.LocationRef, req.Provider)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		if conn == nil {
			conn = &models.PartnerConnection{
				LocationRef:   req.LocationRef,
				Provider:      req.Provider,
				Status:        models.PartnerStatusConnected,
				BaseURL:       strings.TrimRight(strings.TrimSpace(req.BaseURL), "/"),
				AuthSecretRef: req.APIKey,
				SettingsJSON:  EncodeModules(DefaultModules()),
				UpdatedAt:     now,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			update := map[string]interface{}{
				"status":          models.PartnerStatusConnected,
				"base_url":        strings.TrimRight(strings.TrimSpace(req.BaseURL), "/"),
				"auth_secret_ref": req.APIKey,
				"updated_at":      now,
			}
			if len(conn.SettingsJSON) == 0 {
				update["settings_json"] = EncodeModules(DefaultModules())
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DisconnectHandler clears the stored secret and marks the pair disconnected.
func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationRef := strings.TrimSpace(c.Query("locationRef"))
		provider := strings.TrimSpace(c.Query("provider"))
		if locationRef == "" || provider == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locationRef and provider are required"})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB().WithContext(ctx)

		conn, err := models.GetPartnerConnection(ctx, db, locationRef, provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":          models.PartnerStatusDisconnected,
			"auth_secret_ref": "",
			"updated_at":      time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
