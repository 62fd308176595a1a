package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/guard"
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/pagination"
	"github.com/abrezinsky/votedesk/internal/pollstatus"
	"github.com/abrezinsky/votedesk/internal/services"
	"github.com/abrezinsky/votedesk/internal/voteflow"
)

// PageSizes are the page sizes offered on the polls grid
var PageSizes = []int{6, 9, 12, 24}

// PollsPageData holds data for the polls grid
type PollsPageData struct {
	PageData
	Listing   *services.PollListing
	PageSizes []int
	// Filter is the raw filter query parameter, kept across page links.
	Filter string
}

// PageURL links to page of the grid with the current filter
func (d PollsPageData) PageURL(page int) string {
	return pollsURL(page, 0, d.Filter)
}

func pollsURL(page, limit int, filter string) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if filter != "" {
		v.Set("filter", filter)
	}
	return guard.PollsPath + "?" + v.Encode()
}

// PollPageData holds data for a poll's detail view
type PollPageData struct {
	PageData
	Poll       models.Poll
	Status     pollstatus.Snapshot
	Candidates []models.CandidateStanding
	VotedFor   string
	CanVote    bool
	Ended      bool
}

// HomePageData holds data for the voter and candidate home view
type HomePageData struct {
	PageData
	Active   []services.PollCard
	Upcoming []services.PollCard
}

func (h *Handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, guard.LoginPath, http.StatusFound)
}

func (h *Handlers) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusForbidden, h.templates.Unauthorized, h.page(r, "Access denied", ""))
}

func (h *Handlers) handlePolls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := PollsPageData{PageData: h.page(r, "Polls", "polls"), PageSizes: PageSizes}

	page, err := parseIntQuery(r, "page")
	if err != nil {
		page = 1
	}
	limit, err := parseIntQuery(r, "limit")
	if err != nil {
		limit = 0
	}
	if limit > 0 {
		if err := h.Prefs.SetPageSize(ctx, limit); err != nil {
			data.Error = userMessage(err)
			limit = 0
		}
	}

	q := pagination.Query{Page: page, Limit: limit, List: services.ListGrid}
	if raw := r.URL.Query().Get("filter"); raw != "" {
		if !json.Valid([]byte(raw)) {
			data.Error = "Invalid filter"
			h.render(w, http.StatusBadRequest, h.templates.Polls, data)
			return
		}
		q.Filter = json.RawMessage(raw)
		data.Filter = raw
	}

	listing, err := h.Polls.ListPolls(ctx, q)
	if stderrors.Is(err, pagination.ErrPageOutOfRange) {
		http.Redirect(w, r, pollsURL(h.Polls.NearestPage(q), limit, data.Filter), http.StatusFound)
		return
	}
	if stderrors.Is(err, pagination.ErrSuperseded) {
		// Another load of the grid overtook this one; ask again.
		http.Redirect(w, r, r.URL.RequestURI(), http.StatusSeeOther)
		return
	}
	if err != nil {
		data.Error = userMessage(err)
		h.render(w, statusFor(err), h.templates.Polls, data)
		return
	}

	data.Listing = listing
	h.render(w, http.StatusOK, h.templates.Polls, data)
}

func (h *Handlers) handlePoll(w http.ResponseWriter, r *http.Request) {
	h.renderPoll(w, r, "", nil)
}

// handlePollVote is the form fallback for voting without scripts
func (h *Handlers) handlePollVote(w http.ResponseWriter, r *http.Request) {
	snap := h.sessionFrom(r)
	if !snap.Authenticated() {
		http.Redirect(w, r, guard.LoginPath, http.StatusFound)
		return
	}
	if snap.Claims.Role == models.RoleAdmin {
		http.Redirect(w, r, guard.UnauthorizedPath, http.StatusFound)
		return
	}

	pollID, err := pollIDParam(r)
	if err != nil {
		h.renderPoll(w, r, "", err)
		return
	}
	result, err := h.Polls.CastVote(r.Context(), pollID, r.FormValue("candidateId"))
	if err != nil {
		h.renderPoll(w, r, "", err)
		return
	}
	h.renderPoll(w, r, result.Message, nil)
}

func (h *Handlers) renderPoll(w http.ResponseWriter, r *http.Request, notice string, voteErr error) {
	data := PollPageData{PageData: h.page(r, "Poll", "polls")}

	pollID, err := pollIDParam(r)
	if err == nil {
		var view *voteflow.View
		view, err = h.Polls.OpenView(r.Context(), pollID)
		if err == nil {
			data.Poll = view.Poll()
			data.Title = data.Poll.Title
			data.Status = view.Status()
			data.Candidates = view.Candidates()
			data.VotedFor = view.VotedFor()
		}
	}
	if err != nil {
		data.Error = userMessage(err)
		h.render(w, statusFor(err), h.templates.Poll, data)
		return
	}

	data.Ended = data.Status.Status == pollstatus.Ended
	if data.User != nil && data.User.Role != models.RoleAdmin {
		data.CanVote = data.Status.Status == pollstatus.Active
	}
	data.Notice = notice
	status := http.StatusOK
	if voteErr != nil {
		data.Error = userMessage(voteErr)
		status = statusFor(voteErr)
	}
	h.render(w, status, h.templates.Poll, data)
}

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{PageData: h.page(r, "Home", "home")}

	overview, err := h.Polls.Overview(r.Context())
	if err != nil {
		data.Error = userMessage(err)
		h.render(w, statusFor(err), h.templates.Home, data)
		return
	}
	for _, p := range overview.Polls {
		switch p.Status.Status {
		case pollstatus.Active:
			data.Active = append(data.Active, p)
		case pollstatus.Upcoming:
			data.Upcoming = append(data.Upcoming, p)
		}
	}
	h.render(w, http.StatusOK, h.templates.Home, data)
}

// statusFor maps an error to the HTTP status of the page showing it
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Status
	}
	if errors.KindOf(err) == errors.ErrInternal {
		return http.StatusInternalServerError
	}
	return ToAPIError(err).Status
}
