// Package server exposes the client engine over HTTP. It is a thin facade:
// every handler validates the request shape, delegates to the auth engine,
// chat store, exchange simulator, or country directory, and maps their errors
// to status codes.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pixelpilot/internal/auth"
	"pixelpilot/internal/chat"
	"pixelpilot/internal/countries"
	"pixelpilot/internal/exchange"
	"pixelpilot/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Auth      *auth.Engine
	Chats     *chat.Store
	Exchange  *exchange.Simulator
	Countries *countries.Directory
}

// Server exposes HTTP endpoints for the client engine.
type Server struct {
	auth      *auth.Engine
	chats     *chat.Store
	exchange  *exchange.Simulator
	countries *countries.Directory
	mux       *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		auth:      cfg.Auth,
		chats:     cfg.Chats,
		exchange:  cfg.Exchange,
		countries: cfg.Countries,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/state", s.handleAuthState)
	s.mux.HandleFunc("/auth/otp/request", s.handleOTPRequest)
	s.mux.HandleFunc("/auth/otp/verify", s.handleOTPVerify)
	s.mux.HandleFunc("/auth/otp/resend", s.handleOTPResend)
	s.mux.HandleFunc("/auth/otp/cancel", s.handleOTPCancel)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/countries", s.handleCountries)
	s.mux.Handle("/chatrooms", s.withAuth(s.handleChatrooms))
	s.mux.Handle("/chatrooms/", s.withAuth(s.handleChatroomByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAuth gates the chat surface behind an authenticated session.
func (s *Server) withAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.State().IsAuthenticated {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleAuthState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.auth.State())
}

type otpRequestBody struct {
	CountryCode string `json:"countryCode"`
	Phone       string `json:"phone"`
}

func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req otpRequestBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.auth.RequestOTP(req.CountryCode, req.Phone); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.auth.State())
}

type otpVerifyBody struct {
	OTP string `json:"otp"`
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req otpVerifyBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.auth.VerifyOTP(req.OTP); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.auth.State())
}

func (s *Server) handleOTPResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.auth.ResendOTP(); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.auth.State())
}

func (s *Server) handleOTPCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.auth.CancelOTP()
	writeJSON(w, http.StatusOK, s.auth.State())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.auth.Logout()
	writeJSON(w, http.StatusOK, s.auth.State())
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if err := s.countries.Load(r.Context()); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"countries": s.countries.All()})
}

type chatroomBody struct {
	Title string `json:"title"`
}

func (s *Server) handleChatrooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"chatrooms":        s.chats.Chatrooms(),
			"activeChatroomId": s.chats.ActiveChatroomID(),
		})
	case http.MethodPost:
		var req chatroomBody
		if !decodeBody(w, r, &req) {
			return
		}
		room, err := s.chats.CreateChatroom(req.Title)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, room)
	default:
		methodNotAllowed(w)
	}
}

type sendMessageBody struct {
	Content string `json:"content"`
	Image   string `json:"image"`
}

type activeBody struct {
	ChatroomID string `json:"chatroomId"`
}

func (s *Server) handleChatroomByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/chatrooms/")
	if path == "active" {
		s.handleActiveChatroom(w, r)
		return
	}
	id, rest, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if rest == "messages" {
		s.handleMessages(w, r, id)
		return
	}
	if rest != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		room, ok := s.chats.GetChatroom(id)
		if !ok {
			writeMappedError(w, chat.ErrChatroomNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"chatroom":  room,
			"composing": s.exchange.Composing(id),
		})
	case http.MethodPatch:
		var req chatroomBody
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.chats.RenameChatroom(id, req.Title); err != nil {
			writeMappedError(w, err)
			return
		}
		room, _ := s.chats.GetChatroom(id)
		writeJSON(w, http.StatusOK, room)
	case http.MethodDelete:
		if err := s.chats.DeleteChatroom(id); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleActiveChatroom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req activeBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.chats.SetActiveChatroomID(req.ChatroomID); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeChatroomId": s.chats.ActiveChatroomID()})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, chatroomID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req sendMessageBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.exchange.Send(chatroomID, req.Content, req.Image); err != nil {
		writeMappedError(w, err)
		return
	}
	room, _ := s.chats.GetChatroom(chatroomID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"chatroom":  room,
		"composing": s.exchange.Composing(chatroomID),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMappedError translates engine errors into status codes.
func writeMappedError(w http.ResponseWriter, err error) {
	var fieldErr *auth.FieldError
	if errors.As(err, &fieldErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fieldErr.Reason,
			"field": fieldErr.Field,
		})
		return
	}
	var cooldown *auth.CooldownError
	if errors.As(err, &cooldown) {
		w.Header().Set("Retry-After", strconv.Itoa(cooldown.RemainingSeconds()))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             err.Error(),
			"retryAfterSeconds": cooldown.RemainingSeconds(),
		})
		return
	}
	var loadErr *countries.LoadError
	if errors.As(err, &loadErr) {
		writeError(w, http.StatusBadGateway, "country directory unavailable")
		return
	}
	switch {
	case errors.Is(err, auth.ErrInvalidOTP),
		errors.Is(err, auth.ErrChallengeExpired),
		errors.Is(err, auth.ErrNoChallenge):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrNotAwaitingCode),
		errors.Is(err, auth.ErrAlreadyAuthenticated):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrChatroomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrTitleRequired),
		errors.Is(err, exchange.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
