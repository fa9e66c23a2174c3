package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"geowatch/config"
	"geowatch/internal/apperr"
	"geowatch/internal/models"
	"geowatch/internal/scheduler"
	"geowatch/internal/service"
	"geowatch/internal/store"
	"geowatch/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	aois      *service.AOIService
	carts     *service.CartService
	orders    *service.OrderService
	payments  *service.PaymentService
	scheduler *scheduler.Scheduler
	store     *store.Store
	pricing   config.Pricing
}

// NewHandler creates a new HTTP handler
func NewHandler(
	aois *service.AOIService,
	carts *service.CartService,
	orders *service.OrderService,
	payments *service.PaymentService,
	sched *scheduler.Scheduler,
	st *store.Store,
	pricing config.Pricing,
) *Handler {
	return &Handler{
		aois:      aois,
		carts:     carts,
		orders:    orders,
		payments:  payments,
		scheduler: sched,
		store:     st,
		pricing:   pricing,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateways authenticate with signatures, not user identity.
	router.POST("/webhooks/stripe", h.stripeWebhook)
	router.POST("/webhooks/paystack", h.paystackWebhook)

	// Scene metadata intake for the upstream imagery fetcher.
	router.POST("/internal/imagery", h.ingestImagery)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/pricing", h.getPricing)

		v1.POST("/aois", h.createAOI)
		v1.GET("/aois", h.listAOIs)
		v1.GET("/aois/:id", h.getAOI)
		v1.POST("/aois/:id/activate", h.activateAOI)
		v1.POST("/aois/:id/monitor", h.triggerMonitoring)
		v1.GET("/aois/:id/jobs", h.listJobs)
		v1.GET("/aois/:id/detections", h.listDetections)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)
		v1.DELETE("/cart", h.clearCart)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)

		v1.POST("/payments", h.createPayment)
		v1.GET("/payments", h.listPayments)
		v1.POST("/payments/:id/verify", h.verifyPayment)

		v1.GET("/jobs/:id", h.getJob)
		v1.POST("/detections/:id/confirm", h.confirmDetection)

		v1.GET("/notifications", h.listNotifications)
		v1.POST("/notifications/:id/read", h.markNotificationRead)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// userID resolves the authenticated user from the X-User-ID header set by
// the upstream auth proxy. Writes the error response when absent.
func userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Missing or invalid X-User-ID header",
		})
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses the :id path parameter. Writes the error response when
// it is not a UUID.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps domain errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrEmptyCart), errors.Is(err, apperr.ErrInvalidState):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrProvider):
		status = http.StatusBadGateway
	case errors.Is(err, apperr.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) getPricing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"currency": "USD",
		"pricing":  h.pricing,
	})
}

type createAOIRequest struct {
	Name     string         `json:"name" binding:"required"`
	Geometry models.Polygon `json:"geometry" binding:"required"`
	Cadence  models.Cadence `json:"monitoring_frequency" binding:"required"`
}

// createAOI handles AOI creation
func (h *Handler) createAOI(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req createAOIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	aoi, err := h.aois.CreateAOI(c.Request.Context(), uid, req.Name, req.Geometry, req.Cadence)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, aoi)
}

func (h *Handler) listAOIs(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	aois, err := h.aois.ListAOIs(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"aois": aois})
}

func (h *Handler) getAOI(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	aoi, err := h.aois.GetAOI(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, aoi)
}

// activateAOI starts the monitoring window for a paid AOI
func (h *Handler) activateAOI(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	aoi, err := h.aois.Activate(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, aoi)
}

// triggerMonitoring dispatches an out-of-cadence monitoring job
func (h *Handler) triggerMonitoring(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	// Ownership check before touching the scheduler.
	if _, err := h.aois.GetAOI(c.Request.Context(), uid, id); err != nil {
		respondError(c, err)
		return
	}

	job, err := h.scheduler.TriggerManual(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if _, err := h.aois.GetAOI(c.Request.Context(), uid, id); err != nil {
		respondError(c, err)
		return
	}

	jobs, err := h.store.ListJobsByAOI(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) getJob(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	job, err := h.store.GetJobByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.aois.GetAOI(c.Request.Context(), uid, job.AOIID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) listDetections(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	detections, err := h.aois.ListDetections(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"detections": detections})
}

// confirmDetection marks a detection verified by the AOI owner
func (h *Handler) confirmDetection(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	detection, err := h.aois.ConfirmDetection(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detection)
}

func (h *Handler) getCart(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	items, err := h.carts.ListItems(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

type cartItemRequest struct {
	AOIID   uuid.UUID      `json:"aoi_id"`
	Cadence models.Cadence `json:"monitoring_frequency" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AOIID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	item, err := h.carts.AddToCart(c.Request.Context(), uid, req.AOIID, req.Cadence)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Cadence models.Cadence `json:"monitoring_frequency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	item, err := h.carts.UpdateItem(c.Request.Context(), uid, id, req.Cadence)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(c.Request.Context(), uid, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCart(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	if err := h.carts.Clear(c.Request.Context(), uid); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type createOrderRequest struct {
	Cadence  models.Cadence `json:"monitoring_frequency" binding:"required"`
	Currency string         `json:"currency"`
}

// createOrder handles checkout of the user's cart
func (h *Handler) createOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	order, err := h.orders.CreateOrderFromCart(c.Request.Context(), uid, req.Cadence, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

type createPaymentRequest struct {
	OrderID  uuid.UUID       `json:"order_id"`
	Provider models.Provider `json:"provider" binding:"required"`
}

// createPayment initiates a payment with the chosen gateway
func (h *Handler) createPayment(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	payment, result, err := h.payments.CreatePayment(c.Request.Context(), uid, req.OrderID, req.Provider)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment":  payment,
		"checkout": result,
	})
}

func (h *Handler) listPayments(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// verifyPayment polls the gateway for the payment outcome. Fallback for
// missed webhooks.
func (h *Handler) verifyPayment(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.payments.VerifyPayment(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *Handler) listNotifications(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	notifications, err := h.store.ListNotificationsByUser(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.store.MarkNotificationRead(c.Request.Context(), uid, id, time.Now().UTC()); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// stripeWebhook handles payment event deliveries from Stripe
func (h *Handler) stripeWebhook(c *gin.Context) {
	h.handleWebhook(c, models.ProviderStripe, c.GetHeader("Stripe-Signature"))
}

// paystackWebhook handles payment event deliveries from Paystack
func (h *Handler) paystackWebhook(c *gin.Context) {
	h.handleWebhook(c, models.ProviderPaystack, c.GetHeader("x-paystack-signature"))
}

func (h *Handler) handleWebhook(c *gin.Context, provider models.Provider, signature string) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), provider, payload, signature); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

type ingestImageryRequest struct {
	SceneID         string         `json:"scene_id" binding:"required"`
	Satellite       string         `json:"satellite" binding:"required"`
	AcquisitionDate time.Time      `json:"acquisition_date" binding:"required"`
	CloudCoverage   float64        `json:"cloud_coverage"`
	Geometry        models.Polygon `json:"geometry" binding:"required"`
	ImageURL        string         `json:"image_url" binding:"required"`
	ThumbnailURL    string         `json:"thumbnail_url"`
}

func (h *Handler) ingestImagery(c *gin.Context) {
	var req ingestImageryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img := &models.SatelliteImage{
		SceneID:         req.SceneID,
		Satellite:       req.Satellite,
		AcquisitionDate: req.AcquisitionDate,
		CloudCoverage:   req.CloudCoverage,
		Geometry:        req.Geometry,
		ImageURL:        req.ImageURL,
		ThumbnailURL:    req.ThumbnailURL,
	}
	created, err := h.store.UpsertSatelliteImage(c.Request.Context(), img)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, img)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
