package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stockroom_backend/models"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	info, err := h.inv.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.inv.Logout(c.Request.Context(), session(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.inv.ChangePassword(c.Request.Context(), session(c), req.OldPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAccounts(c *gin.Context) {
	accounts, err := h.inv.ListAccounts(c.Request.Context(), session(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *Handler) createAccount(c *gin.Context) {
	var input models.NewAccount
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	account, err := h.inv.CreateAccount(c.Request.Context(), session(c), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *Handler) getAccount(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	account, err := h.inv.GetAccount(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) modifyAccount(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	var input models.AccountUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	account, err := h.inv.ModifyAccount(c.Request.Context(), session(c), id, input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// deleteAccount takes the account inheriting the moves from ?replacement=.
func (h *Handler) deleteAccount(c *gin.Context) {
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
	if err := h.inv.DeleteAccount(c.Request.Context(), session(c), id, replacement); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) accountHasTransactions(c *gin.Context) {
	id, err := intParam(c, "id")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	has, err := h.inv.HasTransactions(c.Request.Context(), session(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_transactions": has})
}
