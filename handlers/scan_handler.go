package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ohler55/ojg/jp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spaolacci/murmur3"

	"nester/config"
	"nester/models"
	"nester/store"
	"nester/validation"
)

const searchParam = "search"

// Collector is what the handlers need from the ingestion and query paths.
type Collector interface {
	IngestJSON(ctx context.Context, body []byte) (uint, error)
	Page(ctx context.Context, term string, limit, offset int) ([]models.ScanResult, error)
	Get(ctx context.Context, id uint) (*models.ScanResult, error)
}

type ScanHandler struct {
	Collector Collector
	// Larger POST /api/data bodies are refused with 413
	MaxBodyBytes int64
}

func NewScanHandler(collector Collector) *ScanHandler {
	return &ScanHandler{Collector: collector, MaxBodyBytes: config.DefaultMaxBodyBytes}
}

func errorBody(err error) gin.H {
	return gin.H{"status": "error", "message": err.Error()}
}

// ReceiveData accepts a scan result pushed by a harvester.
func (h *ScanHandler) ReceiveData(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBodyBytes)
	body, err := c.GetRawData()
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge,
			errorBody(errors.Errorf("request body exceeds %d bytes", tooLarge.Limit)))
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(errors.Wrap(err, "failed to read request body")))
		return
	}

	log := zerolog.Ctx(c.Request.Context())
	log.Debug().Bytes("body", body).Msg("data received")

	// the insert finishes even if the harvester hangs up
	ctx := context.WithoutCancel(c.Request.Context())
	id, err := h.Collector.IngestJSON(ctx, body)
	switch {
	case err == nil:
		log.Info().Uint("id", id).Msg("scan result accepted")
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	case validation.IsValidation(err):
		c.JSON(http.StatusBadRequest, errorBody(err))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody(err))
	}
}

// search term comes from the query string or, for the page form, the body
func searchTerm(c *gin.Context) string {
	if term, ok := c.GetQuery(searchParam); ok {
		return term
	}
	return c.PostForm(searchParam)
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

func (h *ScanHandler) GetResults(c *gin.Context) {
	limit, err := intParam(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	results, err := h.Collector.Page(c.Request.Context(), searchTerm(c), limit, offset)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}

	body, err := json.Marshal(results)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}

	etag := fmt.Sprintf(`"%016x"`, murmur3.Sum64(body))
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetResultByID returns one scan result. With ?select=<jsonpath> only the
// matching parts of its scan data are returned.
func (h *ScanHandler) GetResultByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("invalid id %q", c.Param("id"))))
		return
	}

	result, err := h.Collector.Get(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody(err))
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}

	sel := c.Query("select")
	if sel == "" {
		c.JSON(http.StatusOK, result)
		return
	}

	path, err := jp.ParseString(sel)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(errors.Wrapf(err, "invalid select path %q", sel)))
		return
	}
	payload, err := result.Payload()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody(errors.Wrap(err, "stored scan data is unreadable")))
		return
	}

	matches := path.Get(payload)
	if matches == nil {
		matches = []any{}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      result.ID,
		"select":  sel,
		"matches": matches,
	})
}

func (h *ScanHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
