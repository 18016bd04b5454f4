package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/models"
)

func (h *Handler) listItems(c *gin.Context) {
	var filter models.ItemFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.badRequest(c, err)
		return
	}
	items, err := h.inv.ListItems(c.Request.Context(), session(c), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) insertItem(c *gin.Context) {
	var input models.NewItem
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	item, err := h.inv.InsertItem(c.Request.Context(), session(c), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) getItem(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	item, err := h.inv.GetItem(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) updateItem(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	var input models.ItemUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	item, err := h.inv.UpdateItem(c.Request.Context(), session(c), id, input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) deleteItem(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.inv.DeleteItem(c.Request.Context(), session(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getItemAttributes(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	attributes, err := h.inv.GetItemAttributes(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, attributes)
}
