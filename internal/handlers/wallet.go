package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/services"
)

type WalletHandler struct {
	ledger *services.WalletLedger
	logger *zap.Logger
}

func NewWalletHandler(ledger *services.WalletLedger, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{ledger: ledger, logger: logger}
}

type walletResponse struct {
	*models.Wallet
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	wallet, err := h.ledger.GetWallet(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get wallet", zap.String("user_id", userID), zap.Error(err))
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Wallet: wallet, AvailableBalance: wallet.AvailableBalance()})
}
