package http

import (
	"encoding/json"
	"net/http"

	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// CompletePocketRequest identifies an approved Pocket flow
// @Description Request to finish connecting Pocket
type CompletePocketRequest struct {
	State string `json:"state"`
}

// handleBeginPocket godoc
// @Summary      Start connecting Pocket
// @Description  Obtains a request code and returns the URL where the user approves it
// @Tags         Connect
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.BeginPocketRequest  true  "Consumer key"
// @Success      200      {object}  driving.AuthorizeResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /connect/pocket [post]
func (s *Server) handleBeginPocket(w http.ResponseWriter, r *http.Request) {
	var req driving.BeginPocketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.connectService.BeginPocket(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCompletePocket godoc
// @Summary      Finish connecting Pocket
// @Description  Exchanges the approved request code for an access token
// @Tags         Connect
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CompletePocketRequest  true  "Flow state"
// @Success      201      {object}  driving.ConnectResponse
// @Failure      400      {object}  ErrorResponse  "Invalid or expired state"
// @Router       /connect/pocket/complete [post]
func (s *Server) handleCompletePocket(w http.ResponseWriter, r *http.Request) {
	var req CompletePocketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.completePocket(w, r, req.State)
}

// handlePocketCallback godoc
// @Summary      Pocket approval callback
// @Description  Receives the browser redirect after the user approves the request code
// @Tags         Connect
// @Produce      json
// @Param        state  query     string  true  "Flow state"
// @Success      201    {object}  driving.ConnectResponse
// @Failure      400    {object}  ErrorResponse
// @Router       /connect/pocket/callback [get]
func (s *Server) handlePocketCallback(w http.ResponseWriter, r *http.Request) {
	s.completePocket(w, r, r.URL.Query().Get("state"))
}

func (s *Server) completePocket(w http.ResponseWriter, r *http.Request, state string) {
	resp, err := s.connectService.CompletePocket(r.Context(), state)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleConnectInstapaper godoc
// @Summary      Connect Instapaper
// @Description  Verifies a username and password and stores them
// @Tags         Connect
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.ConnectInstapaperRequest  true  "Login"
// @Success      201      {object}  driving.ConnectResponse
// @Failure      422      {object}  ErrorResponse  "Credentials rejected"
// @Router       /connect/instapaper [post]
func (s *Server) handleConnectInstapaper(w http.ResponseWriter, r *http.Request) {
	var req driving.ConnectInstapaperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.connectService.ConnectInstapaper(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// handleConnectOmnivore godoc
// @Summary      Connect Omnivore
// @Description  Stores an API key as-is
// @Tags         Connect
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.ConnectTokenRequest  true  "API key"
// @Success      201      {object}  driving.ConnectResponse
// @Router       /connect/omnivore [post]
func (s *Server) handleConnectOmnivore(w http.ResponseWriter, r *http.Request) {
	var req driving.ConnectTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.connectService.ConnectOmnivore(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// handleConnectReadwise godoc
// @Summary      Connect Readwise Reader
// @Description  Verifies the access token before storing it
// @Tags         Connect
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.ConnectTokenRequest  true  "Access token"
// @Success      201      {object}  driving.ConnectResponse
// @Failure      422      {object}  ErrorResponse  "Token rejected"
// @Failure      429      {object}  ErrorResponse  "Rate limited"
// @Router       /connect/readwise [post]
func (s *Server) handleConnectReadwise(w http.ResponseWriter, r *http.Request) {
	var req driving.ConnectTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.connectService.ConnectReadwise(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// handleBeginRaindrop godoc
// @Summary      Start connecting Raindrop.io
// @Description  Returns the OAuth2 authorization URL
// @Tags         Connect
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.BeginRaindropRequest  true  "OAuth client"
// @Success      200      {object}  driving.AuthorizeResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /connect/raindrop [post]
func (s *Server) handleBeginRaindrop(w http.ResponseWriter, r *http.Request) {
	var req driving.BeginRaindropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.connectService.BeginRaindrop(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRaindropCallback godoc
// @Summary      Raindrop.io OAuth2 callback
// @Description  Handles the authorization redirect and exchanges the code
// @Tags         Connect
// @Produce      json
// @Param        code               query     string  false  "Authorization code"
// @Param        state              query     string  true   "Flow state"
// @Param        error              query     string  false  "Provider error"
// @Param        error_description  query     string  false  "Provider error description"
// @Success      201                {object}  driving.ConnectResponse
// @Failure      400                {object}  ErrorResponse
// @Router       /connect/raindrop/callback [get]
func (s *Server) handleRaindropCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.connectService.CompleteRaindrop(r.Context(), driving.CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}
