package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/sources"
	"github.com/jonesrussell/newsflow/internal/storage"
	"github.com/jonesrussell/newsflow/internal/trends"
)

const defaultEntityLimit = 20

type handlers struct {
	agg      *trends.Aggregator
	store    storage.ArticleStore
	registry *sources.Registry
}

// parseKind maps the path parameter onto a window kind.
func parseKind(raw string) (domain.WindowKind, bool) {
	switch raw {
	case string(domain.WindowDaily):
		return domain.WindowDaily, true
	case string(domain.WindowRolling7d):
		return domain.WindowRolling7d, true
	default:
		return "", false
	}
}

// parseAt reads the optional ?at=RFC3339 query, defaulting to now.
func parseAt(c *gin.Context) (time.Time, bool) {
	raw := c.Query("at")
	if raw == "" {
		return time.Now(), true
	}

	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC3339"})
		return time.Time{}, false
	}
	return at, true
}

func (h *handlers) trendWindow(c *gin.Context) {
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown window kind"})
		return
	}
	at, ok := parseAt(c)
	if !ok {
		return
	}

	w, ok := h.agg.Window(kind, at)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for window"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window":             w,
		"sentiment_variance": w.SentimentVariance(),
	})
}

func (h *handlers) topEntities(c *gin.Context) {
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown window kind"})
		return
	}
	at, ok := parseAt(c)
	if !ok {
		return
	}

	limit := defaultEntityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, gin.H{"entities": h.agg.TopEntities(kind, at, limit)})
}

func (h *handlers) topicGrowth(c *gin.Context) {
	at, ok := parseAt(c)
	if !ok {
		return
	}

	label := c.Param("label")
	c.JSON(http.StatusOK, gin.H{
		"topic":  label,
		"growth": h.agg.TopicGrowth(label, at),
	})
}

func (h *handlers) article(c *gin.Context) {
	a, err := h.store.GetArticle(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) analysis(c *gin.Context) {
	r, err := h.store.GetAnalysis(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handlers) sourceHealth(c *gin.Context) {
	type sourceView struct {
		ID     string         `json:"id"`
		Name   string         `json:"name"`
		Health sources.Health `json:"health"`
	}

	active := h.registry.Active()
	views := make([]sourceView, 0, len(active))
	for _, src := range active {
		health, _ := h.registry.Health(src.ID)
		views = append(views, sourceView{ID: src.ID, Name: src.Name, Health: health})
	}

	c.JSON(http.StatusOK, gin.H{"sources": views})
}
