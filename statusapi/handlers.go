package statusapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	poller "github.com/st-keller/objid-poller"
	"github.com/st-keller/objid-poller/standard"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes used in API responses.
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeRateLimited = "RATE_LIMITED"
)

// AppInfo is the public view of a tracked app; the auth key is never exposed.
type AppInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Authorized bool   `json:"authorized"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Poller       poller.Status              `json:"poller"`
	IntervalSec  float64                    `json:"interval_sec"`
	Apps         []AppInfo                  `json:"apps"`
	Connectivity []standard.ConnectionStats `json:"connectivity"`
}

// Health returns a handler for GET /api/v1/health.
func Health(startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"uptime_sec": int64(time.Since(startTime).Seconds()),
		})
	}
}

// GetStatus returns a handler for GET /api/v1/status.
func GetStatus(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := deps.Poller.Status()

		apps := make([]AppInfo, 0)
		if deps.Apps != nil {
			for _, e := range deps.Apps.Entities() {
				apps = append(apps, AppInfo{ID: e.ID, Name: e.Name, Authorized: e.AuthKey != ""})
			}
		}

		connectivity := make([]standard.ConnectionStats, 0)
		if deps.Connectivity != nil {
			connectivity = deps.Connectivity.Snapshot()
		}

		c.JSON(http.StatusOK, StatusResponse{
			Poller:       status,
			IntervalSec:  status.Interval.Seconds(),
			Apps:         apps,
			Connectivity: connectivity,
		})
	}
}

// GetConsumption returns a handler for GET /api/v1/apps/:id/consumption.
func GetConsumption(cache *standard.ConsumptionCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		consumption, ok := cache.GetConsumption(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrorDetail{
				Code:    ErrCodeNotFound,
				Message: "no consumption recorded for app " + id,
			}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"app_id": id, "consumption": consumption})
	}
}

// GetNews returns a handler for GET /api/v1/news.
func GetNews(feed *standard.NewsFeed) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"news": feed.Pending()})
	}
}

// DismissNews returns a handler for POST /api/v1/news/:id/dismiss.
func DismissNews(feed *standard.NewsFeed) gin.HandlerFunc {
	return func(c *gin.Context) {
		feed.Dismiss(c.Param("id"))
		c.Status(http.StatusNoContent)
	}
}

// GetNotifications returns a handler for GET /api/v1/notifications.
func GetNotifications(notifier *standard.LogNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"notifications": notifier.History()})
	}
}
