package daemon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/openmined/watchd/internal/daemon/handlers"
	"github.com/openmined/watchd/internal/daemon/middleware"
	"github.com/openmined/watchd/internal/version"
	"github.com/openmined/watchd/internal/watchmgr"
)

type RouteConfig struct {
	Auth middleware.TokenAuthConfig
	// RateLimit is requests per second per client. Zero disables limiting.
	RateLimit int64
}

func SetupRoutes(mgr *watchmgr.Manager, routeConfig *RouteConfig) http.Handler {
	r := gin.New()

	statusH := handlers.NewStatusHandler(mgr)
	rootsH := handlers.NewRootsHandler(mgr)
	debugH := handlers.NewDebugHandler(mgr)
	subscribeH := handlers.NewSubscribeHandler(mgr)

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.Secure())
	r.Use(middleware.Gzip())
	if routeConfig.RateLimit > 0 {
		rateLimiter := limiter.New(memory.NewStore(), limiter.Rate{
			Period: 1 * time.Second,
			Limit:  routeConfig.RateLimit,
		})
		r.Use(mgin.NewMiddleware(rateLimiter))
	}

	r.GET("/", IndexHandler)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", statusH.Status)

		v1Roots := v1.Group("/roots")
		{
			v1Roots.GET("", rootsH.List)
			v1Roots.POST("", rootsH.Watch)
			v1Roots.DELETE("", rootsH.Unwatch)
			v1Roots.GET("/files", rootsH.Files)
			v1Roots.POST("/clock", rootsH.Clock)
			v1Roots.GET("/subscribe", subscribeH.Subscribe)
		}

		v1Debug := v1.Group("/debug")
		{
			v1Debug.POST("/recrawl", debugH.Recrawl)
			v1Debug.POST("/pause-watchers", debugH.PauseWatchers)
			v1Debug.POST("/unpause-watchers", debugH.UnpauseWatchers)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Detailed())
}
