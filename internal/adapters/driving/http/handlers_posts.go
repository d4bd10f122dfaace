package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// ToggleBody carries the displayed state before the toggle
// @Description Interaction state shown to the user
type ToggleBody struct {
	Active bool `json:"active"`
	Count  int  `json:"count" example:"10"`
}

// ToggleFailureResponse reports a failed toggle with the state to display
// @Description Failed toggle; final is the original state
type ToggleFailureResponse struct {
	ErrorResponse
	Optimistic domain.InteractionState `json:"optimistic"`
	Final      domain.InteractionState `json:"final"`
}

// BusyResponse reports in-flight toggles for a post
// @Description In-flight toggles keyed by interaction
type BusyResponse struct {
	PostID string                          `json:"post_id"`
	Busy   map[domain.InteractionKind]bool `json:"busy"`
}

// handleToggle godoc
// @Summary      Toggle an interaction
// @Description  Flips favourite, boost or bookmark. Returns the optimistic and reconciled state.
// @Tags         Posts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string      true  "Post ID"
// @Param        kind     path      string      true  "favourite, boost or bookmark"
// @Param        request  body      ToggleBody  true  "Displayed state"
// @Success      200      {object}  driving.ToggleResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      502      {object}  ToggleFailureResponse
// @Router       /posts/{id}/{kind} [post]
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var body ToggleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.interactionService.Toggle(r.Context(), driving.ToggleRequest{
		PostID: r.PathValue("id"),
		Kind:   domain.InteractionKind(r.PathValue("kind")),
		Active: body.Active,
		Count:  body.Count,
	})
	if err != nil {
		if resp == nil {
			s.writeServiceError(w, err)
			return
		}
		status, errResp := statusForError(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("toggle failed", "error", err)
		}
		writeJSON(w, status, ToggleFailureResponse{
			ErrorResponse: errResp,
			Optimistic:    resp.Optimistic,
			Final:         resp.Final,
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRefreshPost godoc
// @Summary      Refresh a post
// @Description  Fetches the canonical post state and broadcasts it. Queued when a worker runs.
// @Tags         Posts
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Post ID"
// @Success      200  {object}  domain.PostSnapshot
// @Success      202  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "Refresh queue full"
// @Router       /posts/{id}/refresh [post]
func (s *Server) handleRefreshPost(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")

	if s.refreshQueue != nil {
		if err := s.refreshQueue.Enqueue(postID); err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				s.writeServiceError(w, err)
				return
			}
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, StatusResponse{Status: "queued"})
		return
	}

	snapshot, err := s.interactionService.Refresh(r.Context(), postID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handlePostBusy godoc
// @Summary      In-flight toggles
// @Description  Reports which interactions on the post have a toggle in flight
// @Tags         Posts
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Post ID"
// @Success      200  {object}  BusyResponse
// @Router       /posts/{id}/busy [get]
func (s *Server) handlePostBusy(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")
	resp := BusyResponse{PostID: postID, Busy: map[domain.InteractionKind]bool{}}
	for _, kind := range []domain.InteractionKind{
		domain.InteractionFavourite,
		domain.InteractionBoost,
		domain.InteractionBookmark,
	} {
		resp.Busy[kind] = s.interactionService.IsBusy(postID, kind)
	}
	writeJSON(w, http.StatusOK, resp)
}
