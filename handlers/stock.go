package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type supplyRequest struct {
	Amount         int         `json:"amount"`
	ExpirationDate models.Date `json:"expiration_date"`
}

// offtakeRequest lists per-lot quantities; repeated dates are summed.
type offtakeRequest struct {
	Lots []models.Lot `json:"lots"`
}

// toMap rejects negative entries before summing so one cannot cancel another.
func (r offtakeRequest) toMap() (map[models.Date]int, error) {
	if len(r.Lots) == 0 {
		return nil, errors.New("lots are required")
	}
	requested := make(map[models.Date]int, len(r.Lots))
	for _, lot := range r.Lots {
		if lot.Amount < 0 {
			return nil, fmt.Errorf("lot %s: amount must not be negative", lot.ExpirationDate)
		}
		requested[lot.ExpirationDate] += lot.Amount
	}
	return requested, nil
}

func (h *Handler) listLots(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	lots, err := h.inv.ListLots(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lots)
}

func (h *Handler) planOfftake(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	quantity, err := intQuery(c, "quantity")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	plan, err := h.inv.PlanOfftake(c.Request.Context(), session(c), id, quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handler) supply(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	var req supplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	move, err := h.inv.Supply(c.Request.Context(), session(c), id, req.Amount, req.ExpirationDate)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, move)
}

func (h *Handler) offtake(c *gin.Context) {
	h.withdraw(c, false)
}

func (h *Handler) trash(c *gin.Context) {
	h.withdraw(c, true)
}

func (h *Handler) withdraw(c *gin.Context, asTrash bool) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	var req offtakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	requested, err := req.toMap()
	if err != nil {
		h.badRequest(c, err)
		return
	}
	move, err := h.inv.Offtake(c.Request.Context(), session(c), id, requested, asTrash)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, move)
}

func (h *Handler) history(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	entries, err := h.inv.GetTransactionHistory(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) exportHistory(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	var buf bytes.Buffer
	if err := h.inv.ExportTransactionHistory(c.Request.Context(), session(c), id, &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=item-%d-history.xlsx", id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) reconcile(c *gin.Context) {
	drift, err := h.inv.Reconcile(c.Request.Context(), session(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drift": drift})
}

func (h *Handler) repairDrift(c *gin.Context) {
	repaired, err := h.inv.RepairDrift(c.Request.Context(), session(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repaired": repaired})
}
