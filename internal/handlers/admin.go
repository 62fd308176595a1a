package handlers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/abrezinsky/votedesk/internal/services"
)

// DashboardPageData holds data for the admin dashboard
type DashboardPageData struct {
	PageData
	Overview *services.Overview
}

// ResultsPageData holds data for a poll's admin results view
type ResultsPageData struct {
	PageData
	Results  *services.PollResults
	QRURL    string
	CSVURL   string
	ShareURL string
}

func (h *Handlers) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardPageData{PageData: h.page(r, "Admin Dashboard", "dashboard")}

	overview, err := h.Polls.Overview(r.Context())
	if err != nil {
		data.Error = userMessage(err)
		h.render(w, statusFor(err), h.templates.AdminDashboard, data)
		return
	}
	data.Overview = overview
	h.render(w, http.StatusOK, h.templates.AdminDashboard, data)
}

func (h *Handlers) handleAdminResults(w http.ResponseWriter, r *http.Request) {
	data := ResultsPageData{PageData: h.page(r, "Poll Results", "dashboard")}

	pollID, err := pollIDParam(r)
	if err != nil {
		data.Error = userMessage(err)
		h.render(w, statusFor(err), h.templates.AdminResults, data)
		return
	}

	results, err := h.Polls.Results(r.Context(), pollID)
	if err != nil {
		data.Error = userMessage(err)
		h.render(w, statusFor(err), h.templates.AdminResults, data)
		return
	}

	data.Results = results
	data.Title = results.Poll.Title
	escaped := url.PathEscape(pollID)
	data.QRURL = fmt.Sprintf("/api/polls/%s/qr", escaped)
	data.CSVURL = fmt.Sprintf("/api/admin/polls/%s/results.csv", escaped)
	data.ShareURL = fmt.Sprintf("%s/polls/%s", h.opts.BaseURL, escaped)
	h.render(w, http.StatusOK, h.templates.AdminResults, data)
}
