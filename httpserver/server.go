package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/instidoc/institution-registry-backend/common"
	"github.com/instidoc/institution-registry-backend/metrics"
)

type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
}

func New(cfg *HTTPServerConfig, handler *Handler) (srv *Server, err error) {
	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	srv = &Server{
		cfg:        cfg,
		log:        cfg.Log,
		srv:        nil,
		metricsSrv: metricsSrv,
		handler:    handler,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	// Authority administration
	mux.With(srv.httpLogger).Post("/api/admin/roles", srv.handler.HandleCreateRole)
	mux.With(srv.httpLogger).Post("/api/admin/roles/{role_id}/deactivate", srv.handler.HandleDeactivateRole)
	mux.With(srv.httpLogger).Post("/api/admin/members", srv.handler.HandleAddMember)
	mux.With(srv.httpLogger).Post("/api/admin/members/{address}/roles", srv.handler.HandleGrantRole)
	mux.With(srv.httpLogger).Delete("/api/admin/members/{address}/roles/{role_id}", srv.handler.HandleRevokeRole)
	mux.With(srv.httpLogger).Post("/api/admin/departments", srv.handler.HandleCreateDepartment)

	// Document lifecycle
	mux.With(srv.httpLogger).Post("/api/documents", srv.handler.HandleCreateDocument)
	mux.With(srv.httpLogger).Post("/api/documents/{document_id}/state", srv.handler.HandleUpdateDocumentState)
	mux.With(srv.httpLogger).Post("/api/documents/{document_id}/burn", srv.handler.HandleBurn)
	mux.With(srv.httpLogger).Post("/api/documents/{document_id}/transfer", srv.handler.HandleTransfer)

	// Signatures
	mux.With(srv.httpLogger).Post("/api/documents/{document_id}/signatures", srv.handler.HandleAddSignature)
	mux.With(srv.httpLogger).Post("/api/public/signatures/verify", srv.handler.HandleVerifySignature)

	// Workflows
	mux.With(srv.httpLogger).Post("/api/workflows/templates", srv.handler.HandleCreateTemplate)
	mux.With(srv.httpLogger).Post("/api/documents/{document_id}/workflow", srv.handler.HandleCreateWorkflow)
	mux.With(srv.httpLogger).Post("/api/documents/{document_id}/workflow/steps/{step_index}", srv.handler.HandleCompleteStep)

	// Public queries
	mux.With(srv.httpLogger).Get("/api/public/roles", srv.handler.HandleListRoles)
	mux.With(srv.httpLogger).Get("/api/public/members", srv.handler.HandleListMembers)
	mux.With(srv.httpLogger).Get("/api/public/members/{address}", srv.handler.HandleGetMember)
	mux.With(srv.httpLogger).Get("/api/public/departments", srv.handler.HandleListDepartments)
	mux.With(srv.httpLogger).Get("/api/public/departments/{name}", srv.handler.HandleGetDepartment)
	mux.With(srv.httpLogger).Get("/api/public/documents", srv.handler.HandleListDocuments)
	mux.With(srv.httpLogger).Get("/api/public/documents/{document_id}", srv.handler.HandleGetDocument)
	mux.With(srv.httpLogger).Get("/api/public/documents/{document_id}/content", srv.handler.HandleGetContent)
	mux.With(srv.httpLogger).Get("/api/public/documents/{document_id}/metadata", srv.handler.HandleGetMetadata)
	mux.With(srv.httpLogger).Get("/api/public/documents/{document_id}/signatures", srv.handler.HandleListSignatures)
	mux.With(srv.httpLogger).Get("/api/public/documents/{document_id}/workflow", srv.handler.HandleGetWorkflow)

	// Health and diagnostic endpoints
	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already draining"}`))
		return
	}

	srv.log.Info("Server marked as not ready")

	// Wait out the drain period without blocking the request handler.
	go func() {
		time.Sleep(srv.cfg.DrainDuration)
		srv.log.Info("Drain period completed")
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"draining"}`))
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already ready"}`))
		return
	}

	srv.log.Info("Server marked as ready")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) RunInBackground() {
	// metrics
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("HTTP server failed", "err", err)
			}
		}()
	}

	// api
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

func (srv *Server) Shutdown() {
	// api
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	// metrics
	if len(srv.cfg.MetricsAddr) != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()

		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
