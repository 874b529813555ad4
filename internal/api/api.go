package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/storage"
	"github.com/shopmonkeyus/procure/internal/tracker"
)

// MaxUploadSize is the largest attachment accepted.
const MaxUploadSize = 32 << 20

// Response is the envelope of every API response.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Config is the configuration for the API.
type Config struct {
	Logger  logger.Logger
	DB      *database.DB
	Storage storage.Storage

	// Tracker is optional, without it the maintenance status has no history.
	Tracker *tracker.Tracker
	Version string
}

// API serves the invoicing endpoints.
type API struct {
	logger    logger.Logger
	db        *database.DB
	storage   storage.Storage
	tracker   *tracker.Tracker
	validator *Validator
	version   string

	lock     sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New creates the API.
func New(config Config) (*API, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &API{
		logger:    config.Logger.WithPrefix("[api]"),
		db:        config.DB,
		storage:   config.Storage,
		tracker:   config.Tracker,
		validator: validator,
		version:   config.Version,
	}, nil
}

// Handler returns the routes wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", a.handleHealth)

	mux.HandleFunc("GET /api/suppliers", a.handleListSuppliers)
	mux.HandleFunc("POST /api/suppliers", a.handleCreateSupplier)

	mux.HandleFunc("GET /api/invoices", a.handleListInvoices)
	mux.HandleFunc("POST /api/invoices", a.handleCreateInvoice)
	mux.HandleFunc("GET /api/invoices/{id}", a.handleGetInvoice)
	mux.HandleFunc("POST /api/invoices/{id}/attachment", a.handleInvoiceAttachment)

	mux.HandleFunc("GET /api/purchase-orders", a.handleListPurchaseOrders)
	mux.HandleFunc("POST /api/purchase-orders", a.handleCreatePurchaseOrder)
	mux.HandleFunc("GET /api/purchase-orders/{id}", a.handleGetPurchaseOrder)
	mux.HandleFunc("POST /api/purchase-orders/{id}/attachment", a.handlePurchaseOrderAttachment)

	mux.HandleFunc("GET /api/payments", a.handleListPayments)
	mux.HandleFunc("POST /api/payments", a.handleCreatePayment)

	mux.HandleFunc("GET /api/maintenance/status", a.handleMaintenanceStatus)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "not found")
	})

	return a.requestID(a.recovery(a.track(a.metrics(mux))))
}

func sendJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func sendSuccess(w http.ResponseWriter, status int, message string, data any) {
	sendJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, Response{Success: false, Message: message})
}
