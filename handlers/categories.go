package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/models"
)

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.inv.ListCategories(c.Request.Context(), session(c), c.Query("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) createCategory(c *gin.Context) {
	var input models.NewCategory
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	category, err := h.inv.CreateCategory(c.Request.Context(), session(c), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) getCategory(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	category, err := h.inv.GetCategory(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) modifyCategory(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	var input models.NewCategory
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	category, err := h.inv.ModifyCategory(c.Request.Context(), session(c), id, input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// deleteCategory takes the replacement category from ?replacement=.
func (h *Handler) deleteCategory(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	replacement, err := intQuery(c, "replacement")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.inv.DeleteCategory(c.Request.Context(), session(c), id, replacement); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) categoryHasItems(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	has, err := h.inv.HasItems(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_items": has})
}
