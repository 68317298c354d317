package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/server/files"
	"github.com/dmitrijs2005/enginuity/internal/server/listing"
)

// FileService is the file-content API the handlers use.
type FileService interface {
	Upload(ctx context.Context, caller, key string, content []byte, contentType string) (*files.FileInfo, error)
	Get(ctx context.Context, key string) ([]byte, *files.FileInfo, error)
	Replace(ctx context.Context, caller, key string, content []byte) (*files.FileInfo, error)
	Delete(ctx context.Context, caller, key string) error
	Exists(ctx context.Context, key string) error
}

// ListingService answers the list and search routes.
type ListingService interface {
	List(ctx context.Context) ([]string, error)
	Search(ctx context.Context, prefix string) ([]string, error)
	Recent(ctx context.Context, n int) ([]listing.RecentFile, error)
}

type fileHandler struct {
	files   FileService
	listing ListingService
}

func (h *fileHandler) upload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	info, err := h.files.Upload(c.Request.Context(), c.GetString(callerKey), req.Key, []byte(req.Content), req.ContentType)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "File uploaded", "result": info})
}

func (h *fileHandler) list(c *gin.Context) {
	keys, err := h.listing.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *fileHandler) search(c *gin.Context) {
	keys, err := h.listing.Search(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *fileHandler) recent(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			_ = c.Error(fmt.Errorf("%w: limit must be an integer", common.ErrorValidation))
			return
		}
		limit = n
	}

	recent, err := h.listing.Recent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, recent)
}

func (h *fileHandler) get(c *gin.Context) {
	data, info, err := h.files.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("ETag", info.Version)
	c.Data(http.StatusOK, info.ContentType, data)
}

func (h *fileHandler) replace(c *gin.Context) {
	var req replaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	info, err := h.files.Replace(c.Request.Context(), c.GetString(callerKey), c.Param("key"), []byte(req.NewContent))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File replaced", "result": info})
}

func (h *fileHandler) delete(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), c.GetString(callerKey), c.Param("key")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}
