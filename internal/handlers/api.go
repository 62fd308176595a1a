package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/abrezinsky/votedesk/internal/guard"
	"github.com/abrezinsky/votedesk/internal/pagination"
	"github.com/abrezinsky/votedesk/internal/services"
)

func (h *Handlers) handleAPISession(w http.ResponseWriter, r *http.Request) {
	snap := h.Auth.Current(r.Context())
	resp := SessionResponse{Initialized: snap.Initialized, Authenticated: snap.Authenticated()}
	if snap.Authenticated() {
		resp.Email = snap.Claims.Email
		resp.Name = snap.Claims.DisplayName()
		resp.Role = snap.Claims.Role
		resp.Home = guard.HomeFor(snap.Claims.Role)
	}
	respondOK(w, resp)
}

func (h *Handlers) handleAPIListPolls(w http.ResponseWriter, r *http.Request) {
	page, err := parseIntQuery(r, "page")
	if err != nil {
		respondError(w, err)
		return
	}
	limit, err := parseIntQuery(r, "limit")
	if err != nil {
		respondError(w, err)
		return
	}

	q := pagination.Query{Page: page, Limit: limit, List: services.ListAPI}
	if raw := r.URL.Query().Get("filter"); raw != "" {
		if !json.Valid([]byte(raw)) {
			respondError(w, BadRequest("Invalid filter parameter"))
			return
		}
		q.Filter = json.RawMessage(raw)
	}

	listing, err := h.Polls.ListPolls(r.Context(), q)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, listing)
}

func (h *Handlers) handleAPIPollStatus(w http.ResponseWriter, r *http.Request) {
	pollID, err := pollIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	snap, err := h.Polls.Status(r.Context(), pollID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, StatusResponse{PollID: pollID, Snapshot: snap})
}

func (h *Handlers) handleAPIPollQR(w http.ResponseWriter, r *http.Request) {
	pollID, err := pollIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	png, err := h.Polls.ShareQR(r.Context(), pollID, h.opts.BaseURL)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

func (h *Handlers) handleAPIVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := pollIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req VoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.CandidateID == "" {
		respondError(w, BadRequest("candidateId is required"))
		return
	}

	result, err := h.Polls.CastVote(r.Context(), pollID, req.CandidateID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondOK(w, VoteResponse{
		Message:     result.Message,
		CandidateID: result.CandidateID,
		Candidates:  result.Standings,
	})
}

func (h *Handlers) handleAPIResultsCSV(w http.ResponseWriter, r *http.Request) {
	pollID, err := pollIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.Polls.ExportResultsCSV(r.Context(), pollID, &buf); err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="poll-%s-results.csv"`, pollID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

func (h *Handlers) handleAPIGetPreferences(w http.ResponseWriter, r *http.Request) {
	respondOK(w, PreferencesResponse{PageSize: h.Prefs.PageSize(r.Context())})
}

func (h *Handlers) handleAPISetPreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.Prefs.SetPageSize(r.Context(), req.PageSize); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "Preferences saved")
}
