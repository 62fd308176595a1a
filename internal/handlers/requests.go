package handlers

// VoteRequest represents a request to vote for a candidate
type VoteRequest struct {
	CandidateID string `json:"candidateId"`
}

// PreferencesRequest represents a request to update local preferences
type PreferencesRequest struct {
	PageSize int `json:"pageSize"`
}
