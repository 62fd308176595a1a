package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the role claim carried by a session token
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleVoter     Role = "VOTER"
	RoleCandidate Role = "CANDIDATE"
)

// ParseRole accepts only the three roles the backend issues
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleVoter, RoleCandidate:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// FlexString is a string type that can be unmarshaled from either a string or a number.
// Backend identifiers arrive as Mongo-style hex strings or as integers depending on the collection.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler for FlexString
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}

	return fmt.Errorf("FlexString: cannot unmarshal %s", string(data))
}

// String returns the string value
func (f FlexString) String() string {
	return string(f)
}

// Poll is a poll as returned by the voting backend.
// Its lifecycle status is derived from StartTime/EndTime and is never stored here.
type Poll struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	StartTime   time.Time `json:"startDate"`
	EndTime     time.Time `json:"endDate"`
	TotalVotes  int       `json:"totalVotes"`
}

// UnmarshalJSON accepts both "_id" and "id" for the identifier
func (p *Poll) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID     FlexString `json:"_id"`
		ID          FlexString `json:"id"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Category    string     `json:"category"`
		StartTime   time.Time  `json:"startDate"`
		EndTime     time.Time  `json:"endDate"`
		TotalVotes  int        `json:"totalVotes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Poll{
		ID:          firstNonEmpty(raw.MongoID.String(), raw.ID.String()),
		Title:       raw.Title,
		Description: raw.Description,
		Category:    raw.Category,
		StartTime:   raw.StartTime,
		EndTime:     raw.EndTime,
		TotalVotes:  max(raw.TotalVotes, 0),
	}
	return nil
}

// Candidate is a candidate within exactly one poll
type Candidate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Party       string `json:"party,omitempty"`
	Description string `json:"description,omitempty"`
	VoteCount   int    `json:"voteCount"`
}

// UnmarshalJSON accepts both "_id" and "id" and clamps negative counts
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID     FlexString `json:"_id"`
		ID          FlexString `json:"id"`
		Name        string     `json:"name"`
		Party       string     `json:"party"`
		Description string     `json:"description"`
		VoteCount   int        `json:"voteCount"`
		Votes       *int       `json:"votes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	count := raw.VoteCount
	if count == 0 && raw.Votes != nil {
		count = *raw.Votes
	}

	*c = Candidate{
		ID:          firstNonEmpty(raw.MongoID.String(), raw.ID.String()),
		Name:        raw.Name,
		Party:       raw.Party,
		Description: raw.Description,
		VoteCount:   max(count, 0),
	}
	return nil
}

// CandidateStanding is a candidate with its share of the poll's votes, for display
type CandidateStanding struct {
	Candidate
	Rank    int     `json:"rank"`
	Percent float64 `json:"percent"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
