package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/access"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/payment"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/presence"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/session"
)

const maxBodyBytes = 1 << 16

type Exhibitions interface {
	Get(ctx context.Context, id string) (exhibition.Exhibition, error)
	Content(ctx context.Context, id string) (exhibition.Content, error)
}

type AccessResolver interface {
	Resolve(ctx context.Context, ex exhibition.Exhibition, userID string) (access.Decision, error)
	ResolveEntry(ctx context.Context, ex exhibition.Exhibition, userID string) (access.Decision, error)
}

type Payments interface {
	CreatePurchaseIntent(ctx context.Context, exhibitionID, userID string) (payment.PurchaseIntent, error)
	VerifyPurchase(ctx context.Context, in payment.VerifyInput) (payment.VerifyResult, error)
}

type Authenticator interface {
	Resolve(r *http.Request) (session.Identity, error)
}

type PresenceStats interface {
	Stats() presence.Stats
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Exhibitions Exhibitions
	Access      AccessResolver
	Payments    Payments
	Auth        Authenticator
	Presence    PresenceStats
	DB          Pinger
	Logger      *slog.Logger
}

type Server struct {
	exhibitions Exhibitions
	access      AccessResolver
	payments    Payments
	auth        Authenticator
	presence    PresenceStats
	db          Pinger
	logger      *slog.Logger
	mux         *http.ServeMux
}

func NewServer(d Deps) *Server {
	s := &Server{
		exhibitions: d.Exhibitions,
		access:      d.Access,
		payments:    d.Payments,
		auth:        d.Auth,
		presence:    d.Presence,
		db:          d.DB,
		logger:      d.Logger,
		mux:         http.NewServeMux(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.health)
	s.mux.HandleFunc("GET /readyz", s.ready)
	s.mux.HandleFunc("GET /exhibitions/{id}/access", s.optionalIdentity(s.getAccess))
	s.mux.HandleFunc("GET /exhibitions/{id}/view", s.optionalIdentity(s.viewExhibition))
	s.mux.HandleFunc("POST /payments/create-order", s.requireIdentity(s.createOrder))
	s.mux.HandleFunc("POST /payments/verify-payment", s.requireIdentity(s.verifyPayment))
}

// HandleFunc mounts extra routes such as the websocket endpoint.
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type accessResponse struct {
	HasAccess bool `json:"hasAccess"`
	IsFree    bool `json:"isFree"`
	IsExpired bool `json:"isExpired"`
}

// getAccess is the buyer-side view: ownership is deliberately not applied.
func (s *Server) getAccess(w http.ResponseWriter, r *http.Request) {
	ex, err := s.exhibitions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	decision, err := s.access.Resolve(r.Context(), ex, userID(r))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, accessResponse{
		HasAccess: decision.HasAccess,
		IsFree:    decision.IsFree,
		IsExpired: decision.IsExpired,
	})
}

func (s *Server) viewExhibition(w http.ResponseWriter, r *http.Request) {
	content, err := s.exhibitions.Content(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	decision, err := s.access.ResolveEntry(r.Context(), content.Exhibition, userID(r))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	if err := decision.Err(); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExhibitionID string `json:"exhibitionId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	req.ExhibitionID = strings.TrimSpace(req.ExhibitionID)
	if req.ExhibitionID == "" {
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, "exhibitionId is required")
		return
	}

	intent, err := s.payments.CreatePurchaseIntent(r.Context(), req.ExhibitionID, userID(r))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

type verifyResponse struct {
	Success    bool   `json:"success"`
	RedirectTo string `json:"redirectTo"`
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GatewayReference        string `json:"gatewayReference"`
		GatewayPaymentReference string `json:"gatewayPaymentReference"`
		Signature               string `json:"signature"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GatewayReference == "" {
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, "gatewayReference is required")
		return
	}

	result, err := s.payments.VerifyPurchase(r.Context(), payment.VerifyInput{
		GatewayReference:        req.GatewayReference,
		GatewayPaymentReference: req.GatewayPaymentReference,
		Signature:               req.Signature,
	})
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Success: true, RedirectTo: result.RedirectTo})
}

type healthResponse struct {
	Status  string `json:"status"`
	Rooms   int    `json:"rooms"`
	Members int    `json:"members"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	stats := s.presence.Stats()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Rooms: stats.Rooms, Members: stats.Members})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "readiness check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, codeNotReady, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid JSON body")
		return false
	}
	return true
}
