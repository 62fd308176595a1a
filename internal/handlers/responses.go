package handlers

import (
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/pollstatus"
)

// VoteResponse is the response for a successful vote
type VoteResponse struct {
	Message     string                     `json:"message"`
	CandidateID string                     `json:"candidateId"`
	Candidates  []models.CandidateStanding `json:"candidates"`
}

// StatusResponse is the response for a poll status query
type StatusResponse struct {
	PollID string `json:"pollId"`
	pollstatus.Snapshot
}

// SessionResponse describes the current session
type SessionResponse struct {
	Initialized   bool        `json:"initialized"`
	Authenticated bool        `json:"authenticated"`
	Email         string      `json:"email,omitempty"`
	Name          string      `json:"name,omitempty"`
	Role          models.Role `json:"role,omitempty"`
	Home          string      `json:"home,omitempty"`
}

// PreferencesResponse is the response for preference queries
type PreferencesResponse struct {
	PageSize int `json:"pageSize"`
}
