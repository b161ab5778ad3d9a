package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Romainl01/photobooth-backend/internal/identity"
	"github.com/Romainl01/photobooth-backend/internal/models"
	"github.com/Romainl01/photobooth-backend/internal/service"
	"github.com/Romainl01/photobooth-backend/internal/styles"
)

type contextKey string

const accountIDKey contextKey = "accountID"

// IdentityResolver exchanges a bearer token for the stable user id.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, accessToken string) (string, error)
}

type Server struct {
	addr        string
	log         *slog.Logger
	identity    IdentityResolver
	generations *service.GenerationService
	payments    *service.PaymentService
	profiles    *service.ProfileService
	router      *chi.Mux
}

func NewServer(addr string, log *slog.Logger, resolver IdentityResolver, generations *service.GenerationService, payments *service.PaymentService, profiles *service.ProfileService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:        addr,
		log:         log,
		identity:    resolver,
		generations: generations,
		payments:    payments,
		profiles:    profiles,
		router:      r,
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/styles", s.handleListStyles)
	r.Get("/api/packages", s.handleListPackages)
	r.Post("/api/webhooks/payment", s.handlePaymentWebhook)
	r.Group(func(authed chi.Router) {
		authed.Use(s.authMiddleware)
		authed.Get("/api/profile", s.handleProfile)
		authed.Post("/api/generate", s.handleGenerate)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation calls are slow
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		accountID, err := s.identity.ResolveUser(r.Context(), token)
		if err != nil {
			if !errors.Is(err, identity.ErrUnauthenticated) {
				s.log.Error("identity resolution failed", "err", err)
			}
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"styles": styles.Names()})
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"packages": models.Packages()})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFrom(r.Context())
	profile, created, err := s.profiles.EnsureProfile(r.Context(), accountID)
	if err != nil {
		s.log.Error("ensure profile", "account_id", accountID, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if created {
		s.log.Info("profile provisioned", "account_id", accountID, "credits", profile.Credits)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":             profile.ID,
		"credits":        profile.Credits,
		"totalGenerated": profile.TotalGenerated,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
