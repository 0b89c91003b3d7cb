package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/divvyhq/divvy/internal/api"
	"github.com/divvyhq/divvy/internal/auth"
	"github.com/divvyhq/divvy/internal/config"
	"github.com/divvyhq/divvy/internal/ledger"
	"github.com/divvyhq/divvy/internal/metrics"
	"github.com/divvyhq/divvy/internal/rates"
	"github.com/divvyhq/divvy/internal/service"
	"github.com/divvyhq/divvy/internal/storage/sqlite"
	"github.com/divvyhq/divvy/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logging.Setup(logging.ParseLevel(cfg.LogLevel))

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("storage initialized", "database", cfg.DBPath)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	l := ledger.New(store)
	groups := service.NewGroupService(store)

	// Rates come from the host environment; with none configured, expenses
	// must be entered in their group's currency.
	var rateProvider rates.Provider
	if table := rates.StaticFromEnv(); len(table) > 0 {
		rateProvider = rates.NewCache(table, cfg.RateTTL)
	}

	svc := api.Services{
		Auth:        service.NewAuthService(store, jwtManager),
		Groups:      groups,
		Expenses:    service.NewExpenseService(store, l, groups, rateProvider),
		Settlements: service.NewSettlementService(store, l, groups),
		Ledger:      l,
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewHandler(svc, jwtManager))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// h2c gives Connect clients HTTP/2 without TLS.
	handler := h2c.NewHandler(corsMiddleware(mux), &http2.Server{})

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("server starting", "address", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// corsMiddleware adds the headers browser Connect clients need.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
