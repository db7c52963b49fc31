// Package statusapi exposes a read-mostly local HTTP view of the poller.
package statusapi

import (
	"time"

	"github.com/gin-gonic/gin"

	poller "github.com/st-keller/objid-poller"
	"github.com/st-keller/objid-poller/config"
	"github.com/st-keller/objid-poller/standard"
	"github.com/st-keller/objid-poller/types"
)

// StatusSource is the part of the poller the API reads.
type StatusSource interface {
	Status() poller.Status
}

// AppSource lists the apps included in the last check.
type AppSource interface {
	Entities() []types.TrackedEntity
}

// Deps bundles everything the handlers read from.
type Deps struct {
	Poller       StatusSource
	Apps         AppSource
	Consumption  *standard.ConsumptionCache
	News         *standard.NewsFeed
	Notifier     *standard.LogNotifier
	Connectivity *standard.ConnectivityTracker
	StartTime    time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     RateLimit
//
// Health stays outside the rate limit so probes always get an answer.
func NewRouter(deps Deps, status config.StatusConfig, rl config.RateLimitConfig) *gin.Engine {
	gin.SetMode(status.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", Health(deps.StartTime))

	limited := v1.Group("")
	limited.Use(RateLimit(rl))

	limited.GET("/status", GetStatus(deps))
	limited.GET("/apps/:id/consumption", GetConsumption(deps.Consumption))
	limited.GET("/news", GetNews(deps.News))
	limited.POST("/news/:id/dismiss", DismissNews(deps.News))
	limited.GET("/notifications", GetNotifications(deps.Notifier))

	return r
}
