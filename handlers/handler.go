package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/middlewares"
	"github.com/mmdatafocus/stockroom_backend/models"
	"github.com/sirupsen/logrus"
)

// Handler exposes the inventory engine over JSON.
type Handler struct {
	inv    *models.Inventory
	logger *logrus.Logger
}

func New(inv *models.Inventory, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Handler{inv: inv, logger: logger}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/login", h.login)
	r.POST("/logout", h.logout)
	r.PUT("/me/password", h.changePassword)

	items := r.Group("/items")
	items.GET("", h.listItems)
	items.POST("", h.insertItem)
	items.GET("/:id", h.getItem)
	items.PATCH("/:id", h.updateItem)
	items.DELETE("/:id", h.deleteItem)
	items.GET("/:id/attributes", h.getItemAttributes)
	items.GET("/:id/lots", h.listLots)
	items.GET("/:id/offtake-plan", h.planOfftake)
	items.POST("/:id/supply", h.supply)
	items.POST("/:id/offtake", h.offtake)
	items.POST("/:id/trash", h.trash)
	items.GET("/:id/history", h.history)
	items.GET("/:id/history.xlsx", h.exportHistory)

	categories := r.Group("/categories")
	categories.GET("", h.listCategories)
	categories.POST("", h.createCategory)
	categories.GET("/:id", h.getCategory)
	categories.PUT("/:id", h.modifyCategory)
	categories.DELETE("/:id", h.deleteCategory)
	categories.GET("/:id/has-items", h.categoryHasItems)

	accounts := r.Group("/accounts")
	accounts.GET("", h.listAccounts)
	accounts.POST("", h.createAccount)
	accounts.GET("/:id", h.getAccount)
	accounts.PATCH("/:id", h.modifyAccount)
	accounts.DELETE("/:id", h.deleteAccount)
	accounts.GET("/:id/has-transactions", h.accountHasTransactions)

	r.GET("/maintenance/reconcile", h.reconcile)
	r.POST("/maintenance/reconcile", h.repairDrift)
}

// StatusOf maps an engine error kind to its HTTP status.
func StatusOf(err error) int {
	switch models.KindOf(err) {
	case models.ErrNotAuthenticated:
		return http.StatusUnauthorized
	case models.ErrNotAuthorized:
		return http.StatusForbidden
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrInvalidInput:
		return http.StatusBadRequest
	case models.ErrInsufficientStock, models.ErrReferentialConflict:
		return http.StatusConflict
	case models.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		config.LogError(h.logger, "handlers", c.FullPath(), c.Request.Method, nil, err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": models.KindLabel(err)})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": models.KindLabel(models.ErrInvalidInput)})
}

func session(c *gin.Context) models.Session {
	return middlewares.SessionFromContext(c.Request.Context())
}

func intParam(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

// intQuery reads an optional non-negative query parameter; missing is 0.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
