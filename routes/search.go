package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"visual-search-platform/internal/config"
	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/pipeline"
	"visual-search-platform/internal/store"
	"visual-search-platform/internal/telemetry"
	"visual-search-platform/services"
	"visual-search-platform/utils"
)

// maxQueryImageSize caps uploaded query images at 10 MB
const maxQueryImageSize = 10 << 20

// SetupSearchRoutes registers the search endpoints
func SetupSearchRoutes(router *gin.Engine, cfg *config.Config, searchService *services.SearchService, st store.Store, metrics *telemetry.Metrics) {
	api := router.Group("/api")
	{
		api.POST("/search/text", HandleTextSearch(searchService, metrics))
		api.POST("/search/image", HandleImageSearch(searchService, metrics))
		api.POST("/search/hybrid", HandleHybridSearch(searchService, metrics))
		api.GET("/stats", HandleStats(st))
		api.GET("/descriptors", HandleListDescriptors())
	}
}

// TextSearchRequest is the JSON body of a text search
type TextSearchRequest struct {
	Query   string         `json:"query" binding:"required"`
	K       int            `json:"k"`
	Filters *FilterRequest `json:"filters"`
}

// FilterRequest narrows results by structured photo attributes
type FilterRequest struct {
	Tags     []string `json:"tags"`
	DateFrom string   `json:"date_from"`
	DateTo   string   `json:"date_to"`
	MinViews int64    `json:"min_views"`
}

func (f *FilterRequest) toFilter() (*store.Filter, error) {
	if f == nil {
		return nil, nil
	}
	out := &store.Filter{Tags: f.Tags, MinViews: f.MinViews}
	if f.DateFrom != "" {
		t, err := time.Parse("2006-01-02", f.DateFrom)
		if err != nil {
			return nil, err
		}
		out.DateFrom = &t
	}
	if f.DateTo != "" {
		t, err := time.Parse("2006-01-02", f.DateTo)
		if err != nil {
			return nil, err
		}
		out.DateTo = &t
	}
	return out, nil
}

// HandleTextSearch runs a fuzzy text search over titles and tags
func HandleTextSearch(searchService *services.SearchService, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TextSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		filter, err := req.Filters.toFilter()
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid date filter, expected YYYY-MM-DD", err.Error())
			return
		}

		start := time.Now()
		resp, err := searchService.SearchByText(c.Request.Context(), req.Query, req.K, filter)
		if err != nil {
			utils.RespondWithError(c, http.StatusBadGateway, "search_failed", "Text search failed", err.Error())
			return
		}

		if metrics != nil {
			metrics.RecordSearch("text", time.Since(start).Seconds(), 0)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleImageSearch runs a multi-descriptor image similarity search
func HandleImageSearch(searchService *services.SearchService, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		imageData, set, filter, ok := parseImageQuery(c)
		if !ok {
			return
		}

		k, _ := strconv.Atoi(c.PostForm("k"))

		start := time.Now()
		resp, err := searchService.SearchByImage(c.Request.Context(), imageData, set, k, filter)
		if err != nil {
			respondSearchError(c, err)
			return
		}

		if metrics != nil {
			metrics.RecordSearch("image", time.Since(start).Seconds(), len(resp.DroppedDescriptors))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleHybridSearch blends a text query with an image similarity query
func HandleHybridSearch(searchService *services.SearchService, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		imageData, set, filter, ok := parseImageQuery(c)
		if !ok {
			return
		}

		query := c.PostForm("query")
		if query == "" {
			utils.RespondWithBadRequest(c, "Hybrid search requires a text query", nil)
			return
		}

		k, _ := strconv.Atoi(c.PostForm("k"))

		textWeight := 0.5
		if tw := c.PostForm("text_weight"); tw != "" {
			parsed, err := strconv.ParseFloat(tw, 64)
			if err != nil {
				utils.RespondWithBadRequest(c, "text_weight must be a number", err.Error())
				return
			}
			textWeight = parsed
		}

		start := time.Now()
		resp, err := searchService.SearchHybrid(c.Request.Context(), query, imageData, set, k, textWeight, filter)
		if err != nil {
			respondSearchError(c, err)
			return
		}

		if metrics != nil {
			metrics.RecordSearch("hybrid", time.Since(start).Seconds(), len(resp.DroppedDescriptors))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleStats reports index size and store reachability
func HandleStats(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := st.Count(c.Request.Context())
		if err != nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "store_unavailable", "Search store is unreachable", err.Error())
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"indexed_photos": count,
			"timestamp":      time.Now().UTC(),
		})
	}
}

// HandleListDescriptors lists the descriptors a client can enable
func HandleListDescriptors() gin.HandlerFunc {
	type descriptorInfo struct {
		Name       string `json:"name"`
		Field      string `json:"field"`
		Dimensions int    `json:"dimensions"`
		Default    bool   `json:"default"`
	}

	return func(c *gin.Context) {
		out := make([]descriptorInfo, 0, len(descriptor.AllKinds))
		for _, k := range descriptor.AllKinds {
			out = append(out, descriptorInfo{
				Name:       k.String(),
				Field:      k.Field(),
				Dimensions: k.Dims(),
				Default:    descriptor.DefaultSet.Has(k),
			})
		}
		c.JSON(http.StatusOK, gin.H{"descriptors": out})
	}
}

// parseImageQuery reads the multipart query image, the descriptor selection
// and the optional structured filters shared by image and hybrid search.
// It writes the error response itself and reports success via ok.
func parseImageQuery(c *gin.Context) (imageData []byte, set descriptor.Set, filter *store.Filter, ok bool) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.RespondWithBadRequest(c, "No query image uploaded", nil)
		return nil, 0, nil, false
	}
	if fileHeader.Size > maxQueryImageSize {
		utils.RespondWithBadRequest(c, "Query image exceeds the 10MB limit", nil)
		return nil, 0, nil, false
	}
	if ct := fileHeader.Header.Get("Content-Type"); ct != "" && !utils.IsValidImageType(ct) {
		utils.RespondWithBadRequest(c, "Unsupported image type", gin.H{"content_type": ct})
		return nil, 0, nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to read uploaded image", err.Error())
		return nil, 0, nil, false
	}
	defer file.Close()

	imageData, err = io.ReadAll(io.LimitReader(file, maxQueryImageSize+1))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to read uploaded image", err.Error())
		return nil, 0, nil, false
	}

	set, err = descriptor.ParseSet(c.PostFormArray("descriptors"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Unknown descriptor", err.Error())
		return nil, 0, nil, false
	}

	// multipart filters come as a JSON string field
	var filterReq *FilterRequest
	if raw := c.PostForm("filters"); raw != "" {
		filterReq = &FilterRequest{}
		if err := json.Unmarshal([]byte(raw), filterReq); err != nil {
			utils.RespondWithBadRequest(c, "Invalid filters JSON", err.Error())
			return nil, 0, nil, false
		}
	}
	filter, err = filterReq.toFilter()
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid date filter, expected YYYY-MM-DD", err.Error())
		return nil, 0, nil, false
	}

	return imageData, set, filter, true
}

// respondSearchError maps search sentinels onto HTTP statuses
func respondSearchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNoDescriptorsEnabled):
		utils.RespondWithBadRequest(c, "At least one descriptor must be enabled", nil)
	case errors.Is(err, pipeline.ErrInvalidImage):
		utils.RespondWithBadRequest(c, "Query image could not be decoded", nil)
	case errors.Is(err, services.ErrQueryVectorExtraction):
		utils.RespondWithError(c, http.StatusUnprocessableEntity, "extraction_failed",
			"No descriptor could be extracted from the query image", nil)
	case errors.Is(err, services.ErrSearchTimeout):
		utils.RespondWithError(c, http.StatusGatewayTimeout, "search_timeout",
			"All descriptor lookups timed out", nil)
	case errors.Is(err, services.ErrDescriptorLookup):
		utils.RespondWithError(c, http.StatusBadGateway, "lookup_failed",
			"All descriptor lookups failed", nil)
	default:
		utils.RespondWithError(c, http.StatusBadGateway, "search_failed", "Search failed", err.Error())
	}
}
