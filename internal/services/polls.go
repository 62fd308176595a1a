package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/skip2/go-qrcode"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/pagination"
	"github.com/abrezinsky/votedesk/internal/pollstatus"
	"github.com/abrezinsky/votedesk/internal/voteflow"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

// viewIdleTTL is how long an open poll view with no live subscribers is kept.
const viewIdleTTL = 2 * time.Minute

// Websocket message types pushed for a poll
const (
	MsgCandidates = "candidates"
	MsgPollStatus = "poll_status"
)

// PollCard is a poll with its status at the time it was listed
type PollCard struct {
	models.Poll
	Status pollstatus.Snapshot `json:"status"`
}

// PollListing is one page of the poll grid
type PollListing struct {
	Polls      []PollCard      `json:"polls"`
	Info       pagination.Info `json:"pagination"`
	Generation uint64          `json:"generation"`
	Filter     json.RawMessage `json:"filter"`
}

// Overview summarizes every poll for the admin dashboard
type Overview struct {
	Polls      []PollCard
	Total      int
	Upcoming   int
	Active     int
	Ended      int
	TotalVotes int
	// Truncated is set when the backend holds more polls than one request returns.
	Truncated bool
}

// PollResults is a poll's standings
type PollResults struct {
	Poll      models.Poll
	Status    pollstatus.Snapshot
	Standings []models.CandidateStanding
	Total     int
}

// ResultRow is one line of the results CSV export
type ResultRow struct {
	Rank      int    `csv:"rank"`
	Candidate string `csv:"candidate"`
	Party     string `csv:"party"`
	Votes     int    `csv:"votes"`
	Percent   string `csv:"percent"`
}

// CandidatesUpdate is pushed to a poll's subscribers after a vote
type CandidatesUpdate struct {
	PollID     string                     `json:"pollId"`
	Candidates []models.CandidateStanding `json:"candidates"`
	TotalVotes int                        `json:"totalVotes"`
}

// StatusUpdate is pushed to a poll's subscribers on each tick and on a forced end
type StatusUpdate struct {
	PollID string `json:"pollId"`
	pollstatus.Snapshot
}

type viewEntry struct {
	view    *voteflow.View
	refs    int
	touched time.Time
}

// Paged poll lists with independent navigation state
const (
	ListGrid = "grid"
	ListAPI  = "api"
)

// PollService handles poll browsing, open poll views and voting
type PollService struct {
	log         logger.Logger
	client      votingapi.Client
	prefs       PreferencesServicer
	broadcaster Broadcaster
	expirer     SessionExpirer
	now         func() time.Time

	listMu sync.Mutex
	lists  map[string]*listState

	viewsMu sync.Mutex
	views   map[string]*viewEntry
}

// NewPollService creates a new PollService
func NewPollService(log logger.Logger, client votingapi.Client, prefs PreferencesServicer) *PollService {
	return &PollService{
		log:       log,
		client:    client,
		prefs:     prefs,
		now:       time.Now,
		lists:     map[string]*listState{},
		views:     map[string]*viewEntry{},
	}
}

// SetBroadcaster sets the broadcaster for sending updates to clients
func (s *PollService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetSessionExpirer sets who clears the session when the backend rejects the token
func (s *PollService) SetSessionExpirer(e SessionExpirer) {
	s.expirer = e
}

// SetClock overrides the wall clock. Used by tests.
func (s *PollService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *PollService) broadcast(pollID, msgType string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastPoll(pollID, msgType, payload)
	}
}

func (s *PollService) remote(ctx context.Context, err error) error {
	if errors.Is(err, errors.ErrCredential) && s.expirer != nil {
		s.expirer.Expire(ctx)
	}
	return remoteFailure(err, errors.KindOf(err))
}

func (s *PollService) card(p models.Poll, now time.Time) PollCard {
	return PollCard{Poll: p, Status: pollstatus.Compute(p.StartTime, p.EndTime, now)}
}

// ListPolls fetches one page of polls. Pages outside the last known range are
// rejected before any request, and a response overtaken by a newer request is
// discarded with pagination.ErrSuperseded.
func (s *PollService) ListPolls(ctx context.Context, q pagination.Query) (*PollListing, error) {
	if q.Limit == 0 && s.prefs != nil {
		q.Limit = s.prefs.PageSize(ctx)
	}
	q = q.Normalize()

	list := s.list(q)

	if err := list.navigator.Check(q.Page); err != nil {
		return nil, err
	}

	gen := list.seq.Next()
	page, err := s.client.ListPolls(ctx, votingapi.ListRequest{Page: q.Page, Limit: q.Limit, Filter: q.Filter})
	if err != nil {
		return nil, s.remote(ctx, err)
	}
	if err := list.seq.Accept(gen); err != nil {
		s.log.Debug("Discarding superseded poll list", "list", q.List, "generation", gen, "latest", list.seq.Latest())
		return nil, err
	}
	list.navigator.Observe(page.Total)

	now := s.now()
	cards := make([]PollCard, len(page.Polls))
	for i, p := range page.Polls {
		cards[i] = s.card(p, now)
	}

	return &PollListing{
		Polls:      cards,
		Info:       pagination.NewInfo(q.Page, q.Limit, page.Total),
		Generation: gen,
		Filter:     q.Filter,
	}, nil
}

// NearestPage returns the closest valid page to q.Page in q's list
func (s *PollService) NearestPage(q pagination.Query) int {
	if q.Limit == 0 && s.prefs != nil {
		q.Limit = s.prefs.PageSize(context.Background())
	}
	q = q.Normalize()

	s.listMu.Lock()
	l, ok := s.lists[q.List]
	current := ok && l.key == listKey(q)
	s.listMu.Unlock()
	if !current {
		return 1
	}
	return l.navigator.Clamp(q.Page)
}

// listState is the navigation state of one paged list
type listState struct {
	navigator *pagination.Navigator
	seq       pagination.Sequencer
	key       string
}

// list returns the state for q.List, starting over from page 1 when the
// limit or filter changed. q must be normalized.
func (s *PollService) list(q pagination.Query) *listState {
	s.listMu.Lock()
	defer s.listMu.Unlock()

	l, ok := s.lists[q.List]
	if !ok {
		l = &listState{navigator: pagination.NewNavigator(q.Limit)}
		s.lists[q.List] = l
	}
	if key := listKey(q); key != l.key {
		l.navigator.Reset()
		l.navigator.SetLimit(q.Limit)
		l.key = key
	}
	return l
}

func listKey(q pagination.Query) string {
	return fmt.Sprintf("%d|%s", q.Limit, q.Filter)
}

// OpenView fetches a poll with its candidates and returns its view. An already
// open view is refreshed rather than replaced so in-flight state survives.
func (s *PollService) OpenView(ctx context.Context, pollID string) (*voteflow.View, error) {
	poll, err := s.client.GetPoll(ctx, pollID)
	if err != nil {
		return nil, s.remote(ctx, err)
	}
	candidates, err := s.client.ListCandidatesWithVotes(ctx, pollID)
	if err != nil {
		return nil, s.remote(ctx, err)
	}

	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if entry, ok := s.views[pollID]; ok {
		entry.view.Refresh(candidates)
		entry.touched = now
		return entry.view, nil
	}

	view := voteflow.NewView(poll, candidates)
	view.SetClock(s.now)
	s.views[pollID] = &viewEntry{view: view, touched: now}
	return view, nil
}

// AcquireView opens a poll view and holds it until ReleaseView
func (s *PollService) AcquireView(ctx context.Context, pollID string) (*voteflow.View, error) {
	view, err := s.OpenView(ctx, pollID)
	if err != nil {
		return nil, err
	}
	s.viewsMu.Lock()
	if entry, ok := s.views[pollID]; ok {
		entry.refs++
	}
	s.viewsMu.Unlock()
	return view, nil
}

// ReleaseView drops a hold taken by AcquireView. The view is closed with its last holder.
func (s *PollService) ReleaseView(pollID string) {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()

	entry, ok := s.views[pollID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.views, pollID)
		s.log.Debug("Closed poll view", "poll_id", pollID)
	}
}

func (s *PollService) pruneLocked(now time.Time) {
	for id, entry := range s.views {
		if entry.refs <= 0 && now.Sub(entry.touched) > viewIdleTTL {
			delete(s.views, id)
		}
	}
}

func (s *PollService) openView(ctx context.Context, pollID string) (*voteflow.View, error) {
	s.viewsMu.Lock()
	entry, ok := s.views[pollID]
	if ok {
		entry.touched = s.now()
	}
	s.viewsMu.Unlock()
	if ok {
		return entry.view, nil
	}
	return s.OpenView(ctx, pollID)
}

// CastVote submits a vote through the poll's view and pushes the outcome to
// the poll's subscribers.
func (s *PollService) CastVote(ctx context.Context, pollID, candidateID string) (voteflow.Result, error) {
	view, err := s.openView(ctx, pollID)
	if err != nil {
		return voteflow.Result{}, err
	}

	result, err := view.Submit(ctx, s.client, candidateID)
	if err != nil {
		var rejection *voteflow.Rejection
		if errors.As(err, &rejection) {
			s.log.Info("Vote rejected", "poll_id", pollID, "candidate_id", candidateID, "reason", rejection.Message)
			if rejection.Kind == errors.ErrCredential && s.expirer != nil {
				s.expirer.Expire(ctx)
			}
			if rejection.Ended {
				s.broadcast(pollID, MsgPollStatus, StatusUpdate{PollID: pollID, Snapshot: view.Status()})
			}
		} else if errors.Is(err, errors.ErrTransport) {
			s.log.Warn("Vote not delivered", "poll_id", pollID, "error", err)
		}
		return voteflow.Result{}, err
	}

	s.log.Info("Vote cast", "poll_id", pollID, "candidate_id", candidateID)
	s.broadcast(pollID, MsgCandidates, CandidatesUpdate{
		PollID:     pollID,
		Candidates: result.Standings,
		TotalVotes: view.Poll().TotalVotes,
	})
	return result, nil
}

// Status returns the poll's status, from its open view when there is one
func (s *PollService) Status(ctx context.Context, pollID string) (pollstatus.Snapshot, error) {
	s.viewsMu.Lock()
	entry, ok := s.views[pollID]
	s.viewsMu.Unlock()
	if ok {
		return entry.view.Status(), nil
	}

	poll, err := s.client.GetPoll(ctx, pollID)
	if err != nil {
		return pollstatus.Snapshot{}, s.remote(ctx, err)
	}
	return pollstatus.Compute(poll.StartTime, poll.EndTime, s.now()), nil
}

// ShareQR renders a QR code linking to the poll's page under baseURL
func (s *PollService) ShareQR(ctx context.Context, pollID, baseURL string) ([]byte, error) {
	if _, err := s.client.GetPoll(ctx, pollID); err != nil {
		return nil, s.remote(ctx, err)
	}
	link := fmt.Sprintf("%s/polls/%s", strings.TrimSuffix(baseURL, "/"), url.PathEscape(pollID))
	return qrcode.Encode(link, qrcode.Medium, 256)
}

// Overview fetches the first MaxLimit polls and counts them by status
func (s *PollService) Overview(ctx context.Context) (*Overview, error) {
	page, err := s.client.ListPolls(ctx, votingapi.ListRequest{
		Page:   1,
		Limit:  pagination.MaxLimit,
		Filter: json.RawMessage(`{}`),
	})
	if err != nil {
		return nil, s.remote(ctx, err)
	}

	now := s.now()
	o := &Overview{Total: page.Total, Truncated: page.Total > len(page.Polls)}
	for _, p := range page.Polls {
		c := s.card(p, now)
		o.Polls = append(o.Polls, c)
		o.TotalVotes += p.TotalVotes
		switch c.Status.Status {
		case pollstatus.Upcoming:
			o.Upcoming++
		case pollstatus.Active:
			o.Active++
		case pollstatus.Ended:
			o.Ended++
		}
	}
	return o, nil
}

// Results fetches a poll's current standings
func (s *PollService) Results(ctx context.Context, pollID string) (*PollResults, error) {
	poll, err := s.client.GetPoll(ctx, pollID)
	if err != nil {
		return nil, s.remote(ctx, err)
	}
	candidates, err := s.client.ListCandidatesWithVotes(ctx, pollID)
	if err != nil {
		return nil, s.remote(ctx, err)
	}

	standings := voteflow.Rank(candidates)
	total := 0
	for _, c := range standings {
		total += c.VoteCount
	}
	return &PollResults{
		Poll:      poll,
		Status:    pollstatus.Compute(poll.StartTime, poll.EndTime, s.now()),
		Standings: standings,
		Total:     total,
	}, nil
}

// ExportResultsCSV writes a poll's standings as CSV
func (s *PollService) ExportResultsCSV(ctx context.Context, pollID string, w io.Writer) error {
	results, err := s.Results(ctx, pollID)
	if err != nil {
		return err
	}

	rows := make([]*ResultRow, len(results.Standings))
	for i, c := range results.Standings {
		rows[i] = &ResultRow{
			Rank:      c.Rank,
			Candidate: c.Name,
			Party:     c.Party,
			Votes:     c.VoteCount,
			Percent:   fmt.Sprintf("%.1f", c.Percent),
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.Internal(err)
	}
	return nil
}
