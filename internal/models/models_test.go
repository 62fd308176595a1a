package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"ADMIN", "VOTER", "CANDIDATE"} {
		if _, err := ParseRole(valid); err != nil {
			t.Errorf("expected %q to parse, got %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "admin", "SUPERUSER"} {
		if _, err := ParseRole(invalid); err == nil {
			t.Errorf("expected %q to be rejected", invalid)
		}
	}
}

func TestPoll_UnmarshalMongoShape(t *testing.T) {
	body := `{
		"_id": "65f1c0ffee",
		"title": "2024 Presidential Election",
		"description": "Cast your vote",
		"category": "National Election",
		"startDate": "2024-01-01T00:00:00Z",
		"endDate": "2024-12-31T23:59:59Z",
		"totalVotes": 25750
	}`

	var p Poll
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if p.ID != "65f1c0ffee" {
		t.Errorf("expected _id to populate ID, got %q", p.ID)
	}
	if !p.StartTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start time: %v", p.StartTime)
	}
	if !p.EndTime.Equal(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("unexpected end time: %v", p.EndTime)
	}
	if p.TotalVotes != 25750 {
		t.Errorf("expected 25750 votes, got %d", p.TotalVotes)
	}
}

func TestPoll_UnmarshalNumericIDAndNegativeTotal(t *testing.T) {
	var p Poll
	if err := json.Unmarshal([]byte(`{"id": 42, "totalVotes": -3}`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.ID != "42" {
		t.Errorf("expected numeric id to become \"42\", got %q", p.ID)
	}
	if p.TotalVotes != 0 {
		t.Errorf("expected negative total to clamp to 0, got %d", p.TotalVotes)
	}
}

func TestPoll_RoundTripThroughOwnJSON(t *testing.T) {
	in := Poll{ID: "p1", Title: "Mayor", StartTime: time.Unix(100, 0).UTC(), EndTime: time.Unix(200, 0).UTC(), TotalVotes: 4}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out Poll
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.ID != "p1" || !out.EndTime.Equal(in.EndTime) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestCandidate_Unmarshal(t *testing.T) {
	var c Candidate
	body := `{"_id": "c1", "name": "John Smith", "party": "Democratic Party", "voteCount": 15420}`
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if c.ID != "c1" || c.Name != "John Smith" || c.VoteCount != 15420 {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestCandidate_UnmarshalVotesAlias(t *testing.T) {
	var c Candidate
	if err := json.Unmarshal([]byte(`{"id": "c2", "votes": 7}`), &c); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if c.VoteCount != 7 {
		t.Errorf("expected votes alias to populate VoteCount, got %d", c.VoteCount)
	}
}

func TestFlexString_RejectsObjects(t *testing.T) {
	var f FlexString
	if err := json.Unmarshal([]byte(`{"a":1}`), &f); err == nil {
		t.Error("expected object to be rejected")
	}
}
