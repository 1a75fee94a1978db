package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(payments *PaymentHandler, wallets *WalletHandler, auth *Authenticator, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(logger))

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// The gateway authenticates with its callback token and signature, not a JWT.
	router.HandleFunc("/api/payment/webhook", payments.Webhook).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)
	api.HandleFunc("/orders", payments.CreateOrder).Methods("POST")
	api.HandleFunc("/orders", payments.ListOrders).Methods("GET")
	api.HandleFunc("/orders/{orderID}", payments.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{orderID}/cancel", payments.CancelOrder).Methods("POST")
	api.HandleFunc("/orders/{orderID}/sync", payments.SyncOrder).Methods("POST")
	api.HandleFunc("/wallet", wallets.GetWallet).Methods("GET")

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
