// Package httpapi is the gin HTTP surface of the server: routing, request
// validation, authentication and error rendering.
package httpapi

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the router.
type Deps struct {
	Files       FileService
	Listing     ListingService
	Annotations AnnotationService

	Secret      []byte
	Logger      logging.Logger
	CORSOrigins []string

	// Checks are run by /healthz, keyed by dependency name.
	Checks map[string]HealthCheck
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger.With("module", "http")

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), ErrorHandler(logger), cors.New(corsConfig(d.CORSOrigins)))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Enginuity file service")
	})
	r.GET("/healthz", health(d.Checks))

	fh := &fileHandler{files: d.Files, listing: d.Listing}
	ah := &annotationHandler{files: d.Files, annotations: d.Annotations}

	g := r.Group("/files", Authenticate(d.Secret))
	g.POST("", fh.upload)
	g.GET("", fh.list)
	g.GET("/search", fh.search)
	g.GET("/recent", fh.recent)
	g.GET("/:key", fh.get)
	g.PUT("/:key", fh.replace)
	g.DELETE("/:key", fh.delete)

	a := g.Group("/:key", ah.requireFile)
	a.GET("/comments", ah.listComments)
	a.POST("/comments", ah.addComment)
	a.PUT("/comments/:commentId", ah.editComment)
	a.DELETE("/comments/:commentId", ah.deleteComment)
	a.GET("/questions", ah.listQuestions)
	a.POST("/questions", ah.addQuestion)
	a.PUT("/questions/:questionId", ah.editQuestion)
	a.DELETE("/questions/:questionId", ah.deleteQuestion)
	a.POST("/questions/:questionId/answer", ah.answerQuestion)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", common.AuthorizationHeaderName},
		ExposeHeaders:    []string{"Content-Length", "ETag", requestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		failed := gin.H{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				failed[name] = err.Error()
			}
		}

		body := gin.H{"status": "ok", "serverTime": time.Now().UTC()}
		if len(failed) > 0 {
			body["status"] = "unavailable"
			body["failed"] = failed
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}
