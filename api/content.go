package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/fablehq/fable/api/model"
	"github.com/fablehq/fable/internal/apierror"
)

// PinContent pins a payload to the content store and returns its content
// address. Plain text goes through the storage envelope; structured story
// payloads are pinned as-is.
func (a Api) PinContent(c *gin.Context) {
	var req model2.PinContent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidatePinContent(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	var cid string
	var err error
	if req.Story != nil {
		cid, err = a.fable.PinStoryContent(c.Request.Context(), req.Name, req.Story)
	} else {
		cid, err = a.fable.PinText(c.Request.Context(), req.Name, req.Content)
	}
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"cid": cid})
}
