// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kasbuku/internal/automation"
	"kasbuku/internal/cache"
	"kasbuku/internal/core"
	"kasbuku/internal/ledger"
)

type Server struct {
	http.Server
	ledger *ledger.Service
	engine *automation.Engine
	basis  automation.InterestBasis
	locale string

	rateLimiter *rateLimiter

	// Month summary reads are cached; any ledger write invalidates the
	// whole summary family.
	summaryCache *cache.LRU[any]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer wires routes and returns a ready-to-run server.
func NewServer(addr string, svc *ledger.Service, engine *automation.Engine, basis automation.InterestBasis, locale string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		ledger:           svc,
		engine:           engine,
		basis:            basis,
		locale:           locale,
		rateLimiter:      newRateLimiter(),
		summaryCache:     cache.NewLRU[any](200, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.wrap(s.handleReady))

	mux.HandleFunc("POST /accounts", s.wrap(s.handleCreateAccount))
	mux.HandleFunc("GET /accounts", s.wrap(s.handleListAccounts))
	mux.HandleFunc("GET /accounts/{id}/minimum-balance", s.wrap(s.handleMinimumBalance))

	mux.HandleFunc("POST /transactions", s.wrap(s.handlePostTransaction))
	mux.HandleFunc("PATCH /transactions/{id}", s.wrap(s.handleAmendTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.wrap(s.handleReverseTransaction))

	mux.HandleFunc("GET /summary/month", s.wrap(s.handleMonthSummary))
	mux.HandleFunc("GET /summary/categories", s.wrap(s.handleCategorySummaries))
	mux.HandleFunc("GET /summary/days", s.wrap(s.handleDaySummaries))
	mux.HandleFunc("GET /summary/accounts", s.wrap(s.handleAccountSummaries))

	mux.HandleFunc("POST /automation/fees/run", s.wrap(s.handleRunFees))
	mux.HandleFunc("POST /automation/interest/run", s.wrap(s.handleRunInterest))
	mux.HandleFunc("POST /automation/installments/run", s.wrap(s.handleRunInstallments))

	mux.HandleFunc("POST /integrity/verify", s.wrap(s.handleVerify))
	mux.HandleFunc("POST /integrity/rebuild", s.wrap(s.handleRebuild))

	return s
}

// wrap adds request id, request logging and write rate limiting.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"request_id", requestID, "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Repo().Ping(r.Context()); err != nil {
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.summaryCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

func (s *Server) invalidateSummaries() {
	s.summaryCache.DeletePrefix("summary:")
}

// Shutdown stops the cleanup goroutines and the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// formatAmount renders an amount for API responses alongside the raw minor
// units.
func (s *Server) formatAmount(a core.Amount) string {
	return core.Format(a, s.locale)
}
