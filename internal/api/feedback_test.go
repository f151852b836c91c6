package api

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticketstore"
)

func TestFeedback_SubmitAndSummarize(t *testing.T) {
	h := NewAppHandler(newTestDeps(t))
	analyzeVia(t, h, `{"id":"FB-1","title":"Saved payment cards"}`)

	body := `{"user_id":"qa","ratings":[
		{"section":"overall","rating":4},
		{"section":"questions","rating":2,"comment":"Too generic.","unhelpful_items":["Who owns it?"]}
	]}`
	rr := serve(h, authReq(http.MethodPost, "/tickets/FB-1/feedback", body, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST feedback status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
	var saved []storage.Feedback
	if err := json.Unmarshal(rr.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decoding feedback: %v", err)
	}
	if len(saved) != 2 || saved[1].UnhelpfulItems[0] != "Who owns it?" {
		t.Errorf("saved = %+v", saved)
	}

	rr = serve(h, authReq(http.MethodGet, "/tickets/FB-1/feedback", "", testToken))
	var listed []storage.Feedback
	json.Unmarshal(rr.Body.Bytes(), &listed)
	if rr.Code != http.StatusOK || len(listed) != 2 {
		t.Errorf("GET feedback = %d, %d rows", rr.Code, len(listed))
	}

	rr = serve(h, authReq(http.MethodGet, "/feedback", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /feedback status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var sum ticketstore.FeedbackSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if sum.Total != 2 || sum.AverageRating != 3 || sum.RatingDistribution[2] != 1 || len(sum.LowRated) != 1 {
		t.Errorf("summary = %+v", sum)
	}

	rr = serve(h, authReq(http.MethodPost, "/feedback/export?format=csv", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("feedback export status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var exp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &exp)
	if _, err := os.Stat(exp["path"]); err != nil {
		t.Errorf("feedback export file: %v", err)
	}
}

func TestFeedback_BadRequests(t *testing.T) {
	h := NewAppHandler(newTestDeps(t))
	analyzeVia(t, h, `{"id":"FB-2","title":"Order history"}`)

	tests := []struct {
		name, url, body string
		want            int
	}{
		{"malformed", "/tickets/FB-2/feedback", `{`, http.StatusBadRequest},
		{"no ratings", "/tickets/FB-2/feedback", `{"ratings":[]}`, http.StatusBadRequest},
		{"rating out of range", "/tickets/FB-2/feedback", `{"ratings":[{"section":"overall","rating":9}]}`, http.StatusBadRequest},
		{"unknown section", "/tickets/FB-2/feedback", `{"ratings":[{"section":"mood","rating":3}]}`, http.StatusBadRequest},
		{"unknown ticket", "/tickets/NOPE/feedback", `{"ratings":[{"section":"overall","rating":3}]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := serve(h, authReq(http.MethodPost, tt.url, tt.body, testToken)); rr.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	if rr := serve(h, authReq(http.MethodGet, "/feedback?section=mood", "", testToken)); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown section summary status = %d, want 400", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodPost, "/feedback/export?format=xml", "", testToken)); rr.Code != http.StatusBadRequest {
		t.Errorf("bad export format status = %d, want 400", rr.Code)
	}
}
