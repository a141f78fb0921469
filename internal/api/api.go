// Package api exposes the carsync facade over HTTP as JSON endpoints under
// /api.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/pkg/carsync"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// Handler serves the facade operations.
type Handler struct {
	Service *carsync.Service
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.OrDiscard(log)))

	g := r.Group("/api")
	{
		g.GET("/stores", h.GetStores)
		g.GET("/stores/:store/records", h.GetRecords)
		g.GET("/stores/:store/linked", h.GetLinkedStores)
		g.POST("/stores/:store/autosync", h.AutoSync)

		g.GET("/links", h.GetLinks)
		g.POST("/links", h.CreateLink)
		g.DELETE("/links/:source/:target/:kind", h.RemoveLink)
		g.GET("/topology", h.GetTopology)
		g.POST("/topology/init", h.InitializeTopology)

		g.POST("/sync", h.Sync)
		g.GET("/status", h.GetSyncStatus)
		g.GET("/syncs", h.GetRecentSyncs)

		g.GET("/cars/:id", h.GetCrossStoreData)
		g.PATCH("/cars/:id", h.UpdateCrossStoreData)
		g.GET("/cars/:id/client", h.GetClient)
		g.POST("/cars/:id/client", h.LinkClient)
		g.DELETE("/cars/:id/client", h.UnlinkClient)

		g.GET("/clients", h.GetCarsForClient)
		g.GET("/search", h.Search)
		g.GET("/deliveries", h.GetDeliveryStats)
		g.GET("/report", h.GetIntegrityReport)
		g.POST("/reconcile", h.Reconcile)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
	})
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

// fail writes err with the status matching its kind.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrLinkNotFound), errors.Is(err, types.ErrStoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidID), errors.Is(err, types.ErrInvalidKind),
		errors.Is(err, types.ErrInvalidDirection), errors.Is(err, types.ErrInvalidStatus),
		errors.Is(err, types.ErrInvalidData), types.IsConfiguration(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) GetStores(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Stores())
}

func (h *Handler) GetRecords(c *gin.Context) {
	recs, err := h.Service.Records(c.Request.Context(), c.Param("store"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) GetLinkedStores(c *gin.Context) {
	stores, err := h.Service.GetLinkedStores(c.Request.Context(), c.Param("store"), types.Kind(c.Query("kind")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stores)
}

func (h *Handler) GetLinks(c *gin.Context) {
	links, err := h.Service.Links(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

func (h *Handler) CreateLink(c *gin.Context) {
	var input struct {
		Source    string          `json:"source_store" binding:"required"`
		Target    string          `json:"target_store" binding:"required"`
		Kind      types.Kind      `json:"entity_kind" binding:"required"`
		Direction types.Direction `json:"direction"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Direction == "" {
		input.Direction = types.Bidirectional
	}

	link, err := h.Service.CreateLink(c.Request.Context(), input.Source, input.Target, input.Kind, input.Direction)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) RemoveLink(c *gin.Context) {
	err := h.Service.RemoveLink(c.Request.Context(), c.Param("source"), c.Param("target"), types.Kind(c.Param("kind")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) GetTopology(c *gin.Context) {
	t, err := h.Service.Topology(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) InitializeTopology(c *gin.Context) {
	n, err := h.Service.InitializeTopology(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": n})
}

type syncResponse struct {
	Target   string `json:"target_store"`
	Success  bool   `json:"success"`
	RecordID string `json:"record_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func toResponses(results []carsync.SyncResult) []syncResponse {
	out := make([]syncResponse, len(results))
	for i, r := range results {
		out[i] = syncResponse{Target: r.Target, Success: r.Success, RecordID: r.RecordID, Error: r.Error()}
	}
	return out
}

func (h *Handler) Sync(c *gin.Context) {
	var input struct {
		Source string             `json:"source_store" binding:"required"`
		Target string             `json:"target_store" binding:"required"`
		Kind   types.Kind         `json:"entity_kind" binding:"required"`
		Record types.EntityRecord `json:"record"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := h.Service.Sync(c.Request.Context(), input.Source, input.Target, input.Kind, input.Record)
	c.JSON(http.StatusOK, toResponses([]carsync.SyncResult{res})[0])
}

func (h *Handler) AutoSync(c *gin.Context) {
	var input struct {
		Kind   types.Kind         `json:"entity_kind" binding:"required"`
		Record types.EntityRecord `json:"record"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.Service.AutoSyncResults(c.Request.Context(), c.Param("store"), input.Record, input.Kind)
	if err != nil {
		fail(c, err)
		return
	}
	flags := make([]bool, len(results))
	for i, r := range results {
		flags[i] = r.Success
	}
	c.JSON(http.StatusOK, gin.H{"results": flags, "details": toResponses(results)})
}

func (h *Handler) GetSyncStatus(c *gin.Context) {
	st, err := h.Service.GetSyncStatus(c.Request.Context(), c.Query("store"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) GetRecentSyncs(c *gin.Context) {
	n := 20
	if s := c.Query("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be an integer"})
			return
		}
		n = v
	}
	entries, err := h.Service.RecentSyncs(c.Request.Context(), n)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetCrossStoreData(c *gin.Context) {
	data, err := h.Service.GetCrossStoreData(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "car not found"})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *Handler) UpdateCrossStoreData(c *gin.Context) {
	var input carsync.CrossStoreUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.CarID = c.Param("id")

	results := h.Service.UpdateCrossStoreData(c.Request.Context(), input)
	c.JSON(http.StatusOK, gin.H{"updated": toResponses(results)})
}

func (h *Handler) GetClient(c *gin.Context) {
	link, err := h.Service.ClientFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "car has no client"})
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) LinkClient(c *gin.Context) {
	var input struct {
		Car        types.CarAttributes `json:"car"`
		Client     types.ClientInfo    `json:"client"`
		RecordedBy string              `json:"recorded_by"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.Service.LinkClient(c.Request.Context(), c.Param("id"), input.Car, input.Client, input.RecordedBy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) UnlinkClient(c *gin.Context) {
	if err := h.Service.UnlinkClient(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) GetCarsForClient(c *gin.Context) {
	links, err := h.Service.CarsForClient(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(links))
}

func (h *Handler) Search(c *gin.Context) {
	links, err := h.Service.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(links))
}

func (h *Handler) GetDeliveryStats(c *gin.Context) {
	st, err := h.Service.DeliveryStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) GetIntegrityReport(c *gin.Context) {
	r, err := h.Service.IntegrityReport(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) Reconcile(c *gin.Context) {
	by := c.Query("recorded_by")
	if by == "" {
		by = "api"
	}
	n, err := h.Service.Reconcile(c.Request.Context(), by)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": n})
}

func nonNil(links []types.ClientCarLink) []types.ClientCarLink {
	if links == nil {
		return []types.ClientCarLink{}
	}
	return links
}
