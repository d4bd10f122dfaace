package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error     string           `json:"error" example:"invalid request body"`
	Kind      domain.ErrorKind `json:"kind,omitempty" example:"rate_limited"`
	Reconnect bool             `json:"reconnect,omitempty"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ReadyResponse reports each dependency
// @Description Readiness response
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the database and redis connections
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Checks: map[string]string{}}
	status := http.StatusOK

	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			return
		}
		resp.Checks[name] = "ok"
	}
	check("database", s.db)
	check("redis", s.redisClient)

	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Save endpoints

// handleSave godoc
// @Summary      Save a URL
// @Description  Sends a URL to a read-later service. An empty provider uses the primary service.
// @Tags         Saves
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.SaveRequest  true  "URL to save"
// @Success      200      {object}  domain.SaveResult
// @Failure      404      {object}  domain.SaveResult  "Service not configured"
// @Failure      409      {object}  ErrorResponse      "Save already in progress"
// @Failure      422      {object}  domain.SaveResult  "Credential invalid"
// @Failure      429      {object}  domain.SaveResult  "Rate limited"
// @Failure      502      {object}  domain.SaveResult  "Provider error"
// @Router       /saves [post]
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req driving.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.saveService.Save(r.Context(), req)
	if err != nil {
		if result == nil {
			s.writeServiceError(w, err)
			return
		}
		status, _ := statusForError(err)
		setRetryAfter(w, err)
		writeJSON(w, status, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Service registry endpoints

// handleListServices godoc
// @Summary      List connected services
// @Description  Returns the registry snapshot: services, primary, busy flags and the last save result
// @Tags         Services
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.RegistrySnapshot
// @Router       /services [get]
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.saveService.Snapshot())
}

// handleReloadServices godoc
// @Summary      Reload services
// @Description  Rebuilds the registry from storage
// @Tags         Services
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.RegistrySnapshot
// @Router       /services/reload [post]
func (s *Server) handleReloadServices(w http.ResponseWriter, r *http.Request) {
	s.saveService.LoadConfigurations(r.Context())
	writeJSON(w, http.StatusOK, s.saveService.Snapshot())
}

// handleUpdateService godoc
// @Summary      Update a service
// @Description  Changes the enabled flag or settings of a connected service
// @Tags         Services
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Service ID"
// @Param        request  body      driving.UpdateServiceRequest  true  "Changes"
// @Success      200      {object}  domain.ServiceSummary
// @Failure      404      {object}  ErrorResponse
// @Router       /services/{id} [patch]
func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	var req driving.UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := s.saveService.UpdateService(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleRemoveService godoc
// @Summary      Remove a service
// @Description  Erases the credential and configuration; the next service becomes primary if needed
// @Tags         Services
// @Security     BearerAuth
// @Param        id   path  string  true  "Service ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse
// @Router       /services/{id} [delete]
func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	if err := s.saveService.RemoveService(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetPrimary godoc
// @Summary      Set the primary service
// @Description  Makes the service the only primary one. Idempotent.
// @Tags         Services
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Service ID"
// @Success      200  {object}  driving.RegistrySnapshot
// @Failure      404  {object}  ErrorResponse
// @Router       /services/{id}/primary [post]
func (s *Server) handleSetPrimary(w http.ResponseWriter, r *http.Request) {
	if err := s.saveService.SetPrimary(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.saveService.Snapshot())
}

// handleReauthenticate godoc
// @Summary      Re-authenticate a service
// @Description  Runs the provider's default handshake again
// @Tags         Services
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Service ID"
// @Success      200  {object}  StatusResponse
// @Failure      409  {object}  ErrorResponse  "Provider setup required"
// @Failure      422  {object}  ErrorResponse  "Credential rejected"
// @Router       /services/{id}/authenticate [post]
func (s *Server) handleReauthenticate(w http.ResponseWriter, r *http.Request) {
	if err := s.saveService.Reauthenticate(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "authenticated"})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a service error onto a status and user message.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status, resp := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	setRetryAfter(w, err)
	writeJSON(w, status, resp)
}

// statusForError maps the error taxonomy to HTTP.
func statusForError(err error) (int, ErrorResponse) {
	var connectErr *driving.ConnectError
	if errors.As(err, &connectErr) {
		status := http.StatusBadRequest
		if connectErr.Code == driving.ErrConnectExchangeFailed.Code {
			status = http.StatusBadGateway
		}
		return status, ErrorResponse{Error: connectErr.Error()}
	}

	resp := ErrorResponse{Error: domain.UserMessage(err), Kind: domain.ErrorKindOf(err)}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: resp.Kind}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not found"}
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrSetupRequired),
		errors.Is(err, domain.ErrSaveInProgress),
		errors.Is(err, domain.ErrServiceDisabled):
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrCredentialInvalid):
		resp.Reconnect = true
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, resp
	case errors.Is(err, domain.ErrMalformedResponse),
		errors.Is(err, domain.ErrProviderRejected),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusBadGateway, resp
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, resp
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
}

func setRetryAfter(w http.ResponseWriter, err error) {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(pe.RetryAfter.Seconds())))
	}
}
