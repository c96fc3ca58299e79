package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fablehq/fable"
	"github.com/fablehq/fable/api/middleware"
	"github.com/fablehq/fable/config"
)

type Api struct {
	fable  *fable.Fable
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/authors", a.CreateAuthor)
	router.GET("/authors/:id", a.GetAuthor)
	router.GET("/authors", a.GetAllAuthors)
	router.GET("/authors/:id/stories", a.GetAuthorStories)
	router.POST("/authors/:id/sync", a.TriggerSync)
	router.GET("/authors/:id/sync", a.GetSyncRecord)

	router.GET("/stories/:id", a.GetStory)

	router.POST("/content", a.PinContent)
	return a.router
}

func NewAPI(f *fable.Fable) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{fable: f, router: r}
}
