package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"i4.energy/across/lorae5/at"
	"i4.energy/across/lorae5/modem"
	"i4.energy/across/lorae5/service"
)

// DefaultATCommandTimeout is used for raw AT commands that do not specify
// their own timeout.
const DefaultATCommandTimeout = 250 * time.Millisecond

// Device is the set of operations the server and the CLI issue. It is
// satisfied by *service.Client.
type Device interface {
	At(ctx context.Context, cmd string, timeout time.Duration) (string, error)
	Join(ctx context.Context, force bool) (modem.JoinResponse, error)
	Configure(ctx context.Context, credentials modem.Credentials) error
	DevEUI(ctx context.Context) (modem.DevEUI, error)
	AppEUI(ctx context.Context) (modem.AppEUI, error)
	SetDataRate(ctx context.Context, dr modem.DataRate) error
	Send(ctx context.Context, data []byte, port uint8, confirmed bool) (*modem.Downlink, error)
	SendText(ctx context.Context, text string, port uint8, confirmed bool) (*modem.Downlink, error)
	Version(ctx context.Context) (string, error)
	Ping(ctx context.Context) (bool, error)
}

var _ Device = (*service.Client)(nil)

// Server handles incoming HTTP requests for interacting with the
// configured module
type Server struct {
	Logger *slog.Logger
	Device Device
	router chi.Router
}

// NewServer creates a Server and registers its routes
func NewServer(logger *slog.Logger, device Device) *Server {
	s := &Server{
		Logger: logger,
		Device: device,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Get("/eui", s.handleEUI)
	s.router.Post("/at", s.handleAT)
	s.router.Post("/join", s.handleJoin)
	s.router.Post("/configure", s.handleConfigure)
	s.router.Post("/datarate", s.handleDataRate)
	s.router.Post("/uplink", s.handleUplink)
	return s
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// sendDeviceError logs a failed operation and maps it to a status code.
func (s *Server) sendDeviceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	s.Logger.Error("Operation failed", "op", op, "error", err, "status", status,
		"request_id", middleware.GetReqID(r.Context()))
	s.sendError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrClosed), errors.Is(err, service.ErrNoReply):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, modem.ErrPartialResponse),
		errors.Is(err, modem.ErrNack):
		return http.StatusGatewayTimeout
	case errors.Is(err, modem.ErrUnexpectedResponse),
		errors.Is(err, modem.ErrSignalFormat),
		errors.Is(err, modem.ErrBufferFull),
		errors.Is(err, modem.ErrEncoding),
		errors.Is(err, modem.ErrInvalidHex),
		errors.Is(err, modem.ErrLength):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok, err := s.Device.Ping(r.Context())
	if err != nil {
		s.sendDeviceError(w, r, "ping", err)
		return
	}
	if !ok {
		s.sendError(w, "module did not answer AT", http.StatusServiceUnavailable)
		return
	}
	s.sendJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.Device.Version(r.Context())
	if err != nil {
		s.sendDeviceError(w, r, "version", err)
		return
	}
	s.sendJSON(w, map[string]string{"version": version})
}

func (s *Server) handleEUI(w http.ResponseWriter, r *http.Request) {
	devEUI, err := s.Device.DevEUI(r.Context())
	if err != nil {
		s.sendDeviceError(w, r, "dev-eui", err)
		return
	}
	appEUI, err := s.Device.AppEUI(r.Context())
	if err != nil {
		s.sendDeviceError(w, r, "app-eui", err)
		return
	}

	type EUIResponse struct {
		DevEUI modem.DevEUI `json:"dev_eui"`
		AppEUI modem.AppEUI `json:"app_eui"`
	}
	s.sendJSON(w, EUIResponse{DevEUI: devEUI, AppEUI: appEUI})
}

// handleAT passes a raw command through to the module. The answer is returned
// verbatim along with its classified lines.
func (s *Server) handleAT(w http.ResponseWriter, r *http.Request) {
	type ATRequest struct {
		Command   string `json:"command"`
		TimeoutMS int    `json:"timeout_ms"`
	}
	type Line struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type ATResponse struct {
		Response string `json:"response"`
		Lines    []Line `json:"lines"`
	}

	var req ATRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		s.sendError(w, "'command' field is required", http.StatusBadRequest)
		return
	}
	timeout := DefaultATCommandTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	response, err := s.Device.At(r.Context(), req.Command, timeout)
	if err != nil {
		s.sendDeviceError(w, r, "at", err)
		return
	}

	resp := ATResponse{Response: response, Lines: []Line{}}
	for _, line := range at.Lines(response) {
		resp.Lines = append(resp.Lines, Line{Type: at.Classify(line).String(), Text: line})
	}
	s.sendJSON(w, resp)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	type JoinRequest struct {
		Force bool `json:"force"`
	}

	// an empty body joins without force
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.Device.Join(r.Context(), req.Force)
	if err != nil {
		s.sendDeviceError(w, r, "join", err)
		return
	}
	s.Logger.Info("Join finished", "result", result, "force", req.Force)
	s.sendJSON(w, map[string]string{"result": result.String()})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var credentials modem.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Device.Configure(r.Context(), credentials); err != nil {
		s.sendDeviceError(w, r, "configure", err)
		return
	}
	s.Logger.Info("Credentials configured", "dev_eui", credentials.DevEUI)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDataRate(w http.ResponseWriter, r *http.Request) {
	type DataRateRequest struct {
		DataRate string `json:"data_rate"`
	}

	var req DataRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	dr, err := modem.ParseDataRate(req.DataRate)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Device.SetDataRate(r.Context(), dr); err != nil {
		s.sendDeviceError(w, r, "datarate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUplink sends either hex encoded data or text, never both.
func (s *Server) handleUplink(w http.ResponseWriter, r *http.Request) {
	type UplinkRequest struct {
		Data      string `json:"data"`
		Text      string `json:"text"`
		Port      *int   `json:"port"`
		Confirmed bool   `json:"confirmed"`
	}
	type UplinkResponse struct {
		Downlink *modem.Downlink `json:"downlink"`
	}

	var req UplinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if (req.Data == "") == (req.Text == "") {
		s.sendError(w, "exactly one of 'data' and 'text' is required", http.StatusBadRequest)
		return
	}
	port := 1
	if req.Port != nil {
		port = *req.Port
	}
	if port < 1 || port > 223 {
		s.sendError(w, "'port' must be between 1 and 223", http.StatusBadRequest)
		return
	}

	var downlink *modem.Downlink
	var err error
	if req.Data != "" {
		data, decodeErr := hex.DecodeString(req.Data)
		if decodeErr != nil {
			s.sendError(w, decodeErr.Error(), http.StatusBadRequest)
			return
		}
		downlink, err = s.Device.Send(r.Context(), data, uint8(port), req.Confirmed)
	} else {
		downlink, err = s.Device.SendText(r.Context(), req.Text, uint8(port), req.Confirmed)
	}
	if err != nil {
		s.sendDeviceError(w, r, "uplink", err)
		return
	}

	s.Logger.Info("Uplink sent", "port", port, "confirmed", req.Confirmed, "downlink", downlink != nil)
	s.sendJSON(w, UplinkResponse{Downlink: downlink})
}
