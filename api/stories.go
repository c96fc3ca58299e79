package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fablehq/fable/internal/apierror"
)

// GetAuthorStories serves the non-blocking read path: whatever is cached
// for the author right now, together with the sync status.
func (a Api) GetAuthorStories(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.fable.GetStoriesForAuthor(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetStory serves a cached story. Passing ?content=true also fetches the
// story content from the content store.
func (a Api) GetStory(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	storyID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "story id must be a number"})
		return
	}

	withContent := c.Query("content") == "true"

	story, content, err := a.fable.GetStory(c.Request.Context(), storyID, withContent)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if content != nil {
		c.JSON(http.StatusOK, gin.H{"story": story, "content": content})
		return
	}
	c.JSON(http.StatusOK, gin.H{"story": story})
}

// TriggerSync kicks off a background reconciliation for the author and
// returns immediately with the SYNCING record.
func (a Api) TriggerSync(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.fable.TriggerSync(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetSyncRecord reports the outcome of the author's most recent sync.
func (a Api) GetSyncRecord(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.fable.GetSyncRecord(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
