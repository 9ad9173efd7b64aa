package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tradeinsight/internal/logger"
	"tradeinsight/internal/market"
	"tradeinsight/internal/middleware"
	"tradeinsight/internal/monitoring"
	"tradeinsight/internal/mt5"
	"tradeinsight/internal/security"
	"tradeinsight/internal/store"
)

// AccountHandler manages linked MT5 accounts
type AccountHandler struct {
	accounts  *store.AccountStore
	gateway   *mt5.Client
	encryptor *security.Encryptor
	metrics   *monitoring.Metrics
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts *store.AccountStore, gateway *mt5.Client, encryptor *security.Encryptor, metrics *monitoring.Metrics) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		gateway:   gateway,
		encryptor: encryptor,
		metrics:   metrics,
	}
}

// Link validates MT5 credentials against the gateway and stores the
// account with its password encrypted.
// @Summary Link an MT5 account
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LinkAccountRequest true "MT5 credentials"
// @Success 201 {object} Response
// @Router /api/v1/accounts [post]
func (h *AccountHandler) Link(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req LinkAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()

	info, err := h.gateway.Connect(ctx, &mt5.ConnectRequest{
		Login:    req.Login,
		Password: req.Password,
		Server:   req.Server,
	})
	if err != nil {
		h.metrics.RecordGatewayRequest("connect", "error")
		logger.Warn("account link rejected by gateway",
			"user_id", userID.String(), "login", req.Login, "error", err.Error())
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return
	}
	h.metrics.RecordGatewayRequest("connect", "success")

	passwordEnc, err := h.encryptor.Encrypt(req.Password)
	if err != nil {
		logger.Error("failed to encrypt account password", "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to link account"})
		return
	}

	account := &store.Account{
		UserID:      userID,
		Login:       req.Login,
		Server:      req.Server,
		PasswordEnc: passwordEnc,
		Label:       req.Label,
		Currency:    info.Currency,
		Balance:     info.Balance,
		Equity:      info.Equity,
		Margin:      info.Margin,
		FreeMargin:  info.FreeMargin,
		MarginLevel: info.MarginLevel,
		Company:     info.Company,
		Status:      "connected",
		ConnectedAt: time.Now().UTC(),
	}

	if err := h.accounts.Create(ctx, account); err != nil {
		logger.Error("failed to store linked account", "user_id", userID.String(), "error", err.Error())
		appErr := middleware.DatabaseErrorHandler(err)
		msg := "Failed to link account"
		if appErr.HTTPStatus() == http.StatusConflict {
			msg = "Account already linked"
		}
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: msg})
		return
	}

	logger.Info("account linked",
		"user_id", userID.String(),
		"account_id", account.ID.String(),
		"login", account.Login,
		"server", account.Server,
	)

	c.JSON(http.StatusCreated, Response{Success: true, Data: account})
}

// List returns the user's linked accounts
// @Summary List linked accounts
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /api/v1/accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	accounts, err := h.accounts.ListByUser(c.Request.Context(), userID)
	if err != nil {
		logger.Error("failed to list accounts", "user_id", userID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to list accounts"})
		return
	}
	if accounts == nil {
		accounts = []*store.Account{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: accounts})
}

// Get returns one linked account
// @Summary Get a linked account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: account})
}

// Refresh reconnects to the terminal and updates the stored snapshot
// @Summary Refresh account snapshot
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/refresh [post]
func (h *AccountHandler) Refresh(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	info, err := h.connectAccount(c, account)
	if err != nil {
		return
	}

	if err := h.accounts.UpdateSnapshot(ctx, account.ID, info); err != nil {
		logger.Error("failed to update account snapshot",
			"account_id", account.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to save account snapshot"})
		return
	}
	if account.Status != "connected" {
		if err := h.accounts.SetStatus(ctx, account.ID, "connected"); err != nil {
			logger.Warn("failed to mark account connected",
				"account_id", account.ID.String(), "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: info})
}

// Disconnect releases the gateway session and marks the account
// disconnected. The stored credentials are kept.
// @Summary Disconnect an account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id}/disconnect [post]
func (h *AccountHandler) Disconnect(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if err := h.gateway.Disconnect(ctx); err != nil {
		logger.Warn("gateway disconnect failed", "account_id", account.ID.String(), "error", err.Error())
	}

	if err := h.accounts.SetStatus(ctx, account.ID, "disconnected"); err != nil {
		logger.Error("failed to mark account disconnected",
			"account_id", account.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to disconnect account"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Message: "Account disconnected"})
}

// Unlink deletes the account and its synced trade history
// @Summary Unlink an account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} Response
// @Router /api/v1/accounts/{id} [delete]
func (h *AccountHandler) Unlink(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	accountID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.accounts.Delete(c.Request.Context(), userID, accountID); err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Account not found"})
		return
	}

	logger.Info("account unlinked", "user_id", userID.String(), "account_id", accountID.String())

	c.JSON(http.StatusOK, Response{Success: true, Message: "Account unlinked"})
}

// ownedAccount loads the account from the :id path parameter, enforcing
// ownership. Writes the error response itself on failure.
func (h *AccountHandler) ownedAccount(c *gin.Context) (*store.Account, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}
	accountID, ok := pathUUID(c, "id")
	if !ok {
		return nil, false
	}

	account, err := h.accounts.GetByID(c.Request.Context(), userID, accountID)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Account not found"})
		return nil, false
	}
	return account, true
}

// connectAccount decrypts the stored password and establishes the
// gateway session. Writes the error response itself on failure.
func (h *AccountHandler) connectAccount(c *gin.Context, account *store.Account) (*market.AccountInfo, error) {
	return connectLinked(c, h.gateway, h.encryptor, h.metrics, account)
}

// connectLinked is the shared decrypt-and-connect step for handlers that
// need a live terminal session for a stored account. Writes the error
// response itself on failure.
func connectLinked(c *gin.Context, gateway *mt5.Client, encryptor *security.Encryptor, metrics *monitoring.Metrics, account *store.Account) (*market.AccountInfo, error) {
	password, err := encryptor.Decrypt(account.PasswordEnc)
	if err != nil {
		logger.Error("failed to decrypt account password",
			"account_id", account.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to access account credentials"})
		return nil, err
	}

	info, err := gateway.Connect(c.Request.Context(), &mt5.ConnectRequest{
		Login:    account.Login,
		Password: password,
		Server:   account.Server,
	})
	if err != nil {
		metrics.RecordGatewayRequest("connect", "error")
		logger.Warn("gateway connect failed",
			"account_id", account.ID.String(), "error", err.Error())
		appErr := middleware.GatewayErrorHandler(err)
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Error: appErr.Message})
		return nil, err
	}
	metrics.RecordGatewayRequest("connect", "success")
	return info, nil
}

// pathUUID parses a UUID path parameter, writing the error response
// itself when invalid.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid " + name + " parameter"})
		return uuid.Nil, false
	}
	return id, true
}
