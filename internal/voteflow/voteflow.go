// Package voteflow submits votes from an open poll view and keeps the view's
// local tallies consistent with the backend's answer.
package voteflow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/pollstatus"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

// GenericFailure is shown when the backend could not be reached or gave no reason.
const GenericFailure = "Unable to submit your vote right now. Please try again."

var (
	// ErrBusy is returned while another submission from the same view is in flight.
	ErrBusy = errors.Conflict("A vote is already being submitted")
	// ErrPollNotActive is returned without contacting the backend when the
	// poll is upcoming or ended locally.
	ErrPollNotActive = errors.Rejected("This poll is not accepting votes")
)

// Caster sends a vote to the backend
type Caster interface {
	CastVote(ctx context.Context, pollID, candidateID string) (votingapi.VoteResult, error)
}

// Rejection is a refusal from the backend. Message is the backend's own text.
type Rejection struct {
	Message string
	Code    string
	Kind    errors.Kind
	// Ended is set when the refusal says the poll is over.
	Ended bool
}

func (r *Rejection) Error() string { return r.Message }

// ErrorKind classifies the rejection for the errors package.
func (r *Rejection) ErrorKind() errors.Kind { return r.Kind }

// Result describes a successful submission
type Result struct {
	CandidateID string
	Message     string
	Standings   []models.CandidateStanding
}

// View is the vote-casting state of one displayed poll. At most one
// submission is in flight at a time.
type View struct {
	mu         sync.Mutex
	poll       models.Poll
	candidates []models.Candidate
	tracker    *pollstatus.Tracker
	busy       bool
	pending    string // candidate the in-flight submission is for
	held       bool   // pending's count includes the provisional increment
	votedFor   string
	now        func() time.Time
}

// NewView creates a view for poll with its candidates.
func NewView(poll models.Poll, candidates []models.Candidate) *View {
	cs := make([]models.Candidate, len(candidates))
	copy(cs, candidates)
	return &View{
		poll:       poll,
		candidates: cs,
		tracker:    pollstatus.NewTracker(poll.StartTime, poll.EndTime),
		now:        time.Now,
	}
}

// SetClock overrides the wall clock. Used by tests.
func (v *View) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
}

// Poll returns the poll with its current total.
func (v *View) Poll() models.Poll {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.poll
}

// Tracker returns the view's status tracker.
func (v *View) Tracker() *pollstatus.Tracker {
	return v.tracker
}

// Status samples the tracker now.
func (v *View) Status() pollstatus.Snapshot {
	v.mu.Lock()
	now := v.now
	v.mu.Unlock()
	snap, _ := v.tracker.Observe(now())
	return snap
}

// Busy reports whether a submission is in flight.
func (v *View) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.busy
}

// VotedFor returns the candidate this view last voted for successfully.
func (v *View) VotedFor() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.votedFor
}

// Candidates returns the candidates ranked by vote count, including any
// provisional increment.
func (v *View) Candidates() []models.CandidateStanding {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Rank(v.candidates)
}

// Refresh merges counts fetched from the backend. Counts never go below what
// the view already shows. While a submission is in flight the provisional
// increment is kept on top of the merged count, so reverting it cannot take
// a candidate below the backend's figure.
func (v *View) Refresh(candidates []models.Candidate) {
	v.mu.Lock()
	defer v.mu.Unlock()

	current := make(map[string]int, len(v.candidates))
	for _, c := range v.candidates {
		current[c.ID] = c.VoteCount
	}

	provisional := 0
	if v.held {
		provisional = 1
		current[v.pending]--
	}

	merged := make([]models.Candidate, len(candidates))
	held := false
	total := 0
	for i, c := range candidates {
		if local, ok := current[c.ID]; ok && local > c.VoteCount {
			c.VoteCount = local
		}
		if v.pending != "" && c.ID == v.pending {
			c.VoteCount++
			held = true
		}
		merged[i] = c
		total += c.VoteCount
	}

	committed := v.poll.TotalVotes - provisional
	if held {
		total--
	}
	v.candidates = merged
	v.held = held
	v.poll.TotalVotes = max(committed, total)
	if held {
		v.poll.TotalVotes++
	}
}

// Submit casts a vote for candidateID through caster.
//
// The selected candidate is incremented provisionally before the call and
// the increment is committed on success or reverted on failure, so a failed
// submission leaves every count unchanged.
func (v *View) Submit(ctx context.Context, caster Caster, candidateID string) (Result, error) {
	v.mu.Lock()
	if v.busy {
		v.mu.Unlock()
		return Result{}, ErrBusy
	}
	if v.tracker.Status(v.now()) != pollstatus.Active {
		v.mu.Unlock()
		return Result{}, ErrPollNotActive
	}
	idx := v.indexOf(candidateID)
	if idx < 0 {
		v.mu.Unlock()
		return Result{}, errors.Validationf("Unknown candidate %q", candidateID)
	}

	v.busy = true
	v.pending = candidateID
	v.held = true
	v.candidates[idx].VoteCount++
	v.poll.TotalVotes++
	pollID := v.poll.ID
	v.mu.Unlock()

	res, err := caster.CastVote(ctx, pollID, candidateID)

	v.mu.Lock()
	defer v.mu.Unlock()
	held := v.held
	v.busy = false
	v.pending = ""
	v.held = false

	if err != nil {
		// Only the provisional increment is taken back; Refresh may have
		// replaced the counts while the call was in flight.
		if held {
			if i := v.indexOf(candidateID); i >= 0 {
				v.candidates[i].VoteCount--
			}
			v.poll.TotalVotes--
		}
		failure := classify(err)
		if r, ok := failure.(*Rejection); ok && r.Ended {
			v.tracker.ForceEnded()
		}
		return Result{}, failure
	}

	v.votedFor = candidateID
	return Result{
		CandidateID: candidateID,
		Message:     res.Message,
		Standings:   Rank(v.candidates),
	}, nil
}

func (v *View) indexOf(candidateID string) int {
	for i, c := range v.candidates {
		if c.ID == candidateID {
			return i
		}
	}
	return -1
}

// classify converts a cast failure into a Rejection carrying the backend's
// reason, or a transport error with the generic message.
func classify(err error) error {
	var apiErr *votingapi.APIError
	if errors.As(err, &apiErr) {
		kind := apiErr.ErrorKind()
		if kind == errors.ErrTransport || strings.TrimSpace(apiErr.Message) == "" {
			return errors.Wrap(err, errors.ErrTransport, GenericFailure)
		}
		return &Rejection{
			Message: apiErr.Message,
			Code:    apiErr.Code,
			Kind:    kind,
			Ended:   endedReason(apiErr.Code, apiErr.Message),
		}
	}

	var appErr *errors.Error
	if errors.As(err, &appErr) && appErr.Kind == errors.ErrRejected {
		return &Rejection{
			Message: appErr.Message,
			Kind:    errors.ErrRejected,
			Ended:   endedReason("", appErr.Message),
		}
	}

	return errors.Wrap(err, errors.ErrTransport, GenericFailure)
}

// endedReason prefers the structured code and falls back to the wording of
// backends that only send a message.
func endedReason(code, message string) bool {
	if code == votingapi.CodePollEnded {
		return true
	}
	return strings.Contains(strings.ToLower(message), "ended")
}

// Rank orders candidates by count, highest first, with their share of the total.
// Tied candidates share a rank.
func Rank(candidates []models.Candidate) []models.CandidateStanding {
	out := make([]models.CandidateStanding, len(candidates))
	total := 0
	for i, c := range candidates {
		out[i] = models.CandidateStanding{Candidate: c}
		total += c.VoteCount
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VoteCount != out[j].VoteCount {
			return out[i].VoteCount > out[j].VoteCount
		}
		return out[i].Name < out[j].Name
	})

	for i := range out {
		if i > 0 && out[i].VoteCount == out[i-1].VoteCount {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
		if total > 0 {
			out[i].Percent = float64(out[i].VoteCount) * 100 / float64(total)
		}
	}
	return out
}
