package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"agrimarket/internal/models"
	"agrimarket/internal/service"
	"agrimarket/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// maxImageBytes caps uploaded plant photos at 10 MB
const maxImageBytes = 10 << 20

// Handler contains HTTP handlers
type Handler struct {
	carts     *service.CartService
	orders    *service.OrderService
	catalog   *service.CatalogService
	diagnosis *service.DiagnosisService
	crm       *service.CRMService
	secret    string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts *service.CartService,
	orders *service.OrderService,
	catalog *service.CatalogService,
	diagnosisService *service.DiagnosisService,
	crm *service.CRMService,
	tokenSecret string,
) *Handler {
	return &Handler{
		carts:     carts,
		orders:    orders,
		catalog:   catalog,
		diagnosis: diagnosisService,
		crm:       crm,
		secret:    tokenSecret,
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

	v1 := router.Group("/api/v1")
	v1.Use(rateLimitMiddleware(50, 100))

	v1.GET("/products", h.listMarketplace)
	v1.GET("/products/:id", h.getProduct)

	auth := v1.Group("")
	auth.Use(authMiddleware(h.secret))
	{
		cart := auth.Group("/cart")
		cart.Use(sessionMiddleware())
		{
			cart.GET("", h.getCart)
			cart.POST("/items", h.addCartItem)
			cart.PATCH("/items/:productID", h.updateCartItem)
			cart.DELETE("/items/:productID", h.removeCartItem)
			cart.DELETE("", h.clearCart)
		}

		auth.POST("/orders", sessionMiddleware(), requireRole(models.RoleFarmer), h.checkout)
		auth.GET("/orders", h.listOrders)
		auth.GET("/orders/:id", h.getOrder)
		auth.PATCH("/orders/:id/status", requireRole(models.RoleAgrovet, models.RoleAdmin), h.updateOrderStatus)

		auth.POST("/diagnosis", requireRole(models.RoleFarmer), h.analyzePlant)
		auth.GET("/diagnosis/history", requireRole(models.RoleFarmer), h.diagnosisHistory)
		auth.POST("/advice", h.advice)

		agrovet := auth.Group("")
		agrovet.Use(requireRole(models.RoleAgrovet, models.RoleAdmin))
		{
			agrovet.POST("/pos/sales", sessionMiddleware(), h.completeSale)
			agrovet.GET("/inventory", h.listInventory)
			agrovet.POST("/products", h.createProduct)
			agrovet.PUT("/products/:id", h.updateProduct)
			agrovet.DELETE("/products/:id", h.deleteProduct)
			agrovet.PATCH("/products/:id/active", h.setProductActive)
			agrovet.GET("/farmers", h.listFarmers)
			agrovet.GET("/customers", h.listCustomers)
			agrovet.GET("/interactions", h.listInteractions)
			agrovet.POST("/interactions", h.recordInteraction)
		}
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

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	var stockErr *store.InsufficientStockError
	var transitionErr *service.InvalidStatusTransitionError

	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": transitionErr.Error()})
	case errors.Is(err, service.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrProductNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, service.ErrCartItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrMissingDeliveryAddress),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidCategory),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrUnknownStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// -- Marketplace & catalog --

func (h *Handler) listMarketplace(c *gin.Context) {
	products, err := h.catalog.Marketplace(c.Request.Context(), c.Query("search"), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listInventory(c *gin.Context) {
	userID, _ := identity(c)
	includeInactive := c.Query("include_inactive") == "true"
	products, err := h.catalog.AgrovetInventory(c.Request.Context(), userID, includeInactive, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type productRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	Category      string          `json:"category" binding:"required"`
	Price         decimal.Decimal `json:"price" binding:"required"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      string          `json:"image_url"`
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, _ := identity(c)
	product, err := h.catalog.CreateProduct(c.Request.Context(), userID, service.ProductInput{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, role := identity(c)
	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, userID, role, service.ProductInput{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, role := identity(c)
	deactivated, err := h.catalog.DeleteProduct(c.Request.Context(), id, userID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	if deactivated {
		c.JSON(http.StatusOK, gin.H{"deactivated": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) setProductActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, role := identity(c)
	if err := h.catalog.SetActive(c.Request.Context(), id, userID, role, *req.Active); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": *req.Active})
}

// -- Cart --

type cartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.Get(c.Request.Context(), c.GetString(ctxSessionID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total": cart.Total()})
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.carts.Add(c.Request.Context(), c.GetString(ctxSessionID), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total": cart.Total()})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID, ok := pathID(c, "productID")
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.carts.UpdateQuantity(c.Request.Context(), c.GetString(ctxSessionID), productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total": cart.Total()})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, ok := pathID(c, "productID")
	if !ok {
		return
	}
	cart, err := h.carts.Remove(c.Request.Context(), c.GetString(ctxSessionID), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total": cart.Total()})
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), c.GetString(ctxSessionID)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// -- Orders --

type checkoutRequest struct {
	DeliveryAddress string `json:"delivery_address"`
	Notes           string `json:"notes"`
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, _ := identity(c)
	order, err := h.orders.Checkout(c.Request.Context(), c.GetString(ctxSessionID), userID, req.DeliveryAddress, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

type posSaleRequest struct {
	CustomerID    *int64 `json:"customer_id"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	Notes         string `json:"notes"`
}

func (h *Handler) completeSale(c *gin.Context) {
	var req posSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, _ := identity(c)
	order, err := h.orders.CompleteSale(c.Request.Context(), c.GetString(ctxSessionID), userID, req.CustomerID, req.PaymentMethod, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, role := identity(c)
	order, items, err := h.orders.GetOrder(c.Request.Context(), id, userID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

func (h *Handler) listOrders(c *gin.Context) {
	var status *models.OrderStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := service.ParseStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		status = &parsed
	}

	userID, role := identity(c)
	var orders []models.Order
	var err error
	switch role {
	case models.RoleAgrovet:
		orders, err = h.orders.ListAgrovetOrders(c.Request.Context(), userID, status)
	case models.RoleAdmin:
		orders, err = h.orders.ListAllOrders(c.Request.Context(), status)
	default:
		orders, err = h.orders.ListFarmerOrders(c.Request.Context(), userID, status)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	status, err := service.ParseStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	userID, role := identity(c)
	order, err := h.orders.UpdateStatus(c.Request.Context(), id, userID, role, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// -- Diagnosis --

func (h *Handler) analyzePlant(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
		return
	}
	if len(image) > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds 10MB limit"})
		return
	}

	userID, _ := identity(c)
	result, saved, err := h.diagnosis.Analyze(c.Request.Context(), userID, image, header.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "saved": saved})
}

func (h *Handler) diagnosisHistory(c *gin.Context) {
	userID, _ := identity(c)
	detections, err := h.diagnosis.History(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detections": detections})
}

func (h *Handler) advice(c *gin.Context) {
	var req struct {
		Question string `json:"question" binding:"required"`
		Context  string `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	answer, err := h.diagnosis.Advice(c.Request.Context(), req.Question, req.Context)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// -- CRM --

func (h *Handler) listFarmers(c *gin.Context) {
	farmers, err := h.crm.Farmers(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"farmers": farmers})
}

func (h *Handler) listCustomers(c *gin.Context) {
	userID, _ := identity(c)
	customers, err := h.crm.Customers(c.Request.Context(), userID, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (h *Handler) listInteractions(c *gin.Context) {
	userID, _ := identity(c)
	interactions, err := h.crm.Interactions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}

func (h *Handler) recordInteraction(c *gin.Context) {
	var req struct {
		FarmerID        int64  `json:"farmer_id" binding:"required"`
		InteractionType string `json:"interaction_type" binding:"required"`
		Notes           string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, _ := identity(c)
	interaction, err := h.crm.RecordInteraction(c.Request.Context(), userID, req.FarmerID, req.InteractionType, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, interaction)
}
