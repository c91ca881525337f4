package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

// AccountHandler exposes the ledger over HTTP.
type AccountHandler struct {
	ledger ports.LedgerService
}

func NewAccountHandler(ledger ports.LedgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// Open handles POST /v1/accounts.
//
// @Summary      Open an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      openAccountRequest  true  "Account name and opening balance"
// @Success      201   {object}  domain.Account
// @Failure      400   {object}  messageResponse
// @Failure      403   {object}  messageResponse
// @Failure      409   {object}  messageResponse
// @Router       /v1/accounts [post]
func (h *AccountHandler) Open(c echo.Context) error {
	var req openAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	acc, err := h.ledger.OpenAccount(c.Request().Context(), req.Name, req.InitialBalance)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, acc)
}

// List handles GET /v1/accounts.
//
// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  accountsResponse
// @Failure      401  {object}  messageResponse
// @Router       /v1/accounts [get]
func (h *AccountHandler) List(c echo.Context) error {
	accounts, err := h.ledger.ListAccounts(c.Request().Context())
	if err != nil {
		return err
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}
	return c.JSON(http.StatusOK, accountsResponse{Accounts: accounts})
}

// Get handles GET /v1/accounts/:name.
//
// @Summary      Get an account balance
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        name  path      string  true  "Account name"
// @Success      200   {object}  domain.Account
// @Failure      404   {object}  messageResponse
// @Router       /v1/accounts/{name} [get]
func (h *AccountHandler) Get(c echo.Context) error {
	acc, err := h.ledger.GetAccount(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acc)
}

// Entries handles GET /v1/accounts/:name/entries.
//
// @Summary      Ledger entries of an account
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        name   path      string  true   "Account name"
// @Param        limit  query     int     false  "Maximum number of entries (default 50)"
// @Success      200    {object}  entriesResponse
// @Failure      400    {object}  messageResponse
// @Failure      404    {object}  messageResponse
// @Router       /v1/accounts/{name}/entries [get]
func (h *AccountHandler) Entries(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}
	name := c.Param("name")
	entries, err := h.ledger.Entries(c.Request().Context(), name, limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return c.JSON(http.StatusOK, entriesResponse{Account: name, Entries: entries})
}

// Deposit handles POST /v1/accounts/:name/deposit.
//
// @Summary      Deposit into an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        name  path      string         true  "Account name"
// @Param        body  body      amountRequest  true  "Amount in minor units"
// @Success      200   {object}  domain.Account
// @Failure      400   {object}  messageResponse
// @Failure      404   {object}  messageResponse
// @Router       /v1/accounts/{name}/deposit [post]
func (h *AccountHandler) Deposit(c echo.Context) error {
	return h.adjust(c, h.ledger.Deposit)
}

// Withdraw handles POST /v1/accounts/:name/withdraw.
//
// @Summary      Withdraw from an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        name  path      string         true  "Account name"
// @Param        body  body      amountRequest  true  "Amount in minor units"
// @Success      200   {object}  domain.Account
// @Failure      400   {object}  messageResponse
// @Failure      404   {object}  messageResponse
// @Router       /v1/accounts/{name}/withdraw [post]
func (h *AccountHandler) Withdraw(c echo.Context) error {
	return h.adjust(c, h.ledger.Withdraw)
}

type adjustFunc func(ctx context.Context, actor, name string, amount int64) (*domain.Account, error)

func (h *AccountHandler) adjust(c echo.Context, fn adjustFunc) error {
	cred, err := ctxCredential(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	acc, err := fn(c.Request().Context(), cred.Username, c.Param("name"), req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acc)
}

// Transfer handles POST /transfer.
//
// @Summary      Transfer between accounts
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string           false  "Client request id; retries with the same key return the original receipt"
// @Param        body             body      transferRequest  true   "Transfer details"
// @Success      200              {object}  transferResponse
// @Failure      400              {object}  messageResponse
// @Failure      401              {object}  messageResponse
// @Failure      404              {object}  messageResponse
// @Failure      409              {object}  messageResponse
// @Failure      422              {object}  messageResponse
// @Failure      503              {object}  messageResponse
// @Router       /transfer [post]
func (h *AccountHandler) Transfer(c echo.Context) error {
	cred, err := ctxCredential(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	receipt, err := h.ledger.Transfer(c.Request().Context(), cred.Username, domain.TransferRequest{
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		RequestID: strings.TrimSpace(c.Request().Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTransferResponse(receipt))
}
