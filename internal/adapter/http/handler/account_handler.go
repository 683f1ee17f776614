package handler

import (
	"context"

	"bank-ledger/internal/adapter/http/dto"
	"bank-ledger/internal/adapter/http/middleware"
	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/apperror"
	"bank-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccountHandler maps account endpoints onto single ledger engine calls.
type AccountHandler struct {
	ledger ports.LedgerService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger ports.LedgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

func actorOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
	}
	return actor, ok
}

// List handles GET /api/v1/accounts.
func (h *AccountHandler) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	views, err := h.ledger.GetAllAccounts(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAccountResponses(views))
}

// Create handles POST /api/v1/accounts. The caller becomes the owner.
func (h *AccountHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	view, err := h.ledger.CreateAccount(c.Request.Context(), ports.CreateAccountRequest{
		IBAN:           req.IBAN,
		AccountNumber:  req.AccountNumber,
		InitialBalance: *req.InitialBalance,
		OwnerUsername:  actor.Username,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewAccountResponse(*view))
}

// Get handles GET /api/v1/accounts/:iban.
func (h *AccountHandler) Get(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	view, err := h.ledger.GetAccountByIBAN(c.Request.Context(), actor, c.Param("iban"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAccountResponse(*view))
}

// Balance handles GET /api/v1/accounts/:iban/balance.
func (h *AccountHandler) Balance(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	iban := c.Param("iban")
	balance, err := h.ledger.GetBalance(c.Request.Context(), actor, iban)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(iban, balance))
}

// History handles GET /api/v1/accounts/:iban/transactions, newest first.
func (h *AccountHandler) History(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	entries, err := h.ledger.GetTransactionHistory(c.Request.Context(), actor, c.Param("iban"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewEntryResponses(entries))
}

// Delete handles DELETE /api/v1/accounts/:iban.
func (h *AccountHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	if err := h.ledger.DeleteAccount(c.Request.Context(), actor, c.Param("iban")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Deposit handles POST /api/v1/accounts/:iban/deposit.
func (h *AccountHandler) Deposit(c *gin.Context) {
	h.applyAmount(c, h.ledger.Deposit)
}

// Withdraw handles POST /api/v1/accounts/:iban/withdraw.
func (h *AccountHandler) Withdraw(c *gin.Context) {
	h.applyAmount(c, h.ledger.Withdraw)
}

type amountOp func(ctx context.Context, actor domain.Actor, iban string, amount decimal.Decimal) error

func (h *AccountHandler) applyAmount(c *gin.Context, op amountOp) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	iban := c.Param("iban")
	if err := op(c.Request.Context(), actor, iban, *req.Amount); err != nil {
		response.Error(c, err)
		return
	}
	h.respondBalance(c, actor, iban)
}

// Transfer handles POST /api/v1/accounts/:iban/transfer.
func (h *AccountHandler) Transfer(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	from := c.Param("iban")
	if err := h.ledger.Transfer(c.Request.Context(), actor, from, req.ToIBAN, *req.Amount); err != nil {
		response.Error(c, err)
		return
	}
	h.respondBalance(c, actor, from)
}

// respondBalance reports the post-mutation balance of the caller's account.
// The mutation is already committed, so a failing read is reported as such.
func (h *AccountHandler) respondBalance(c *gin.Context, actor domain.Actor, iban string) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), actor, iban)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(iban, balance))
}
