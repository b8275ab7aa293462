package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/usecase/voting"
)

type stubRounds struct {
	runs    int
	runErr  error
	voteErr error
	voter   string
}

func (s *stubRounds) Run(context.Context) (voting.RunResult, error) {
	s.runs++
	return voting.RunResult{Action: voting.ActionVoting, Candidates: 3}, s.runErr
}

func (s *stubRounds) VoteByURL(_ context.Context, voterID, imageURL string) (domain.VotingImage, error) {
	s.voter = voterID
	if s.voteErr != nil {
		return domain.VotingImage{}, s.voteErr
	}
	return domain.VotingImage{ImageURL: imageURL, Votes: 5}, nil
}

type stubUpdates struct{ ids []int }

func (s *stubUpdates) HandleUpdate(_ context.Context, update tgbotapi.Update) {
	s.ids = append(s.ids, update.UpdateID)
}

type sliceQueue struct{ jobs []domain.PostJob }

func (q *sliceQueue) Enqueue(_ context.Context, job domain.PostJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *sliceQueue) Receive(context.Context) (domain.PostJob, domain.AckFunc, error) {
	return domain.PostJob{}, nil, errors.New("not implemented")
}

type fixture struct {
	router   chi.Router
	rounds   *stubRounds
	updates  *stubUpdates
	queue    *sliceQueue
	failures []string
}

func newFixture() *fixture {
	f := &fixture{rounds: &stubRounds{}, updates: &stubUpdates{}, queue: &sliceQueue{}}
	a := &api{
		log:        zerolog.Nop(),
		rounds:     f.rounds,
		updates:    f.updates,
		posts:      f.queue,
		page:       "main",
		dailyPosts: 2,
		report: func(_ context.Context, route string, _ error) {
			f.failures = append(f.failures, route)
		},
		now: func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
	}
	f.router = chi.NewRouter()
	a.mount(f.router, "cron-secret", "hook-secret")
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestManageVotingRequiresSecret(t *testing.T) {
	f := newFixture()
	if rec := f.do(http.MethodGet, "/api/managevoting", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec := f.do(http.MethodGet, "/api/managevoting", "", map[string]string{"Authorization": "Bearer cron-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res voting.RunResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Action != voting.ActionVoting || res.Candidates != 3 || f.rounds.runs != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestManageVotingFailureIsReported(t *testing.T) {
	f := newFixture()
	f.rounds.runErr = errors.New("graph down")
	rec := f.do(http.MethodGet, "/api/managevoting", "", map[string]string{"Authorization": "Bearer cron-secret"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(f.failures) != 1 || f.failures[0] != "/api/managevoting" {
		t.Fatalf("expected failure report, got %v", f.failures)
	}
}

func TestVote(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "accepted", body: `{"url":"https://cdn/a.png","voter_id":"u1"}`, status: http.StatusOK},
		{name: "duplicate", body: `{"url":"https://cdn/a.png","voter_id":"u1"}`, err: domain.ErrDuplicateVote, status: http.StatusConflict},
		{name: "unknown image", body: `{"url":"https://cdn/x.png","voter_id":"u1"}`, err: domain.ErrImageNotFound, status: http.StatusNotFound},
		{name: "bad url", body: `{"url":"ftp://cdn/a.png","voter_id":"u1"}`, status: http.StatusBadRequest},
		{name: "missing voter", body: `{"url":"https://cdn/a.png"}`, status: http.StatusBadRequest},
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.rounds.voteErr = tc.err
			rec := f.do(http.MethodPost, "/api/vote", tc.body, map[string]string{"Authorization": "Bearer cron-secret"})
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if len(f.failures) != 0 {
				t.Fatalf("client errors must not be reported: %v", f.failures)
			}
		})
	}
}

func TestVoteRequiresSecret(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/vote", `{"url":"https://cdn/a.png","voter_id":"u1"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if f.rounds.voter != "" {
		t.Fatalf("vote must not reach the orchestrator, got voter %q", f.rounds.voter)
	}
}

func TestCronEnqueuesDailyJobs(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/cron", "", map[string]string{"Authorization": "Bearer cron-secret"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var res cronResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Enqueued) != 2 || len(f.queue.jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %+v", res)
	}
	if f.queue.jobs[0].Page != "main" || f.queue.jobs[1].Sequence != 2 {
		t.Fatalf("unexpected jobs %+v", f.queue.jobs)
	}
}

func TestWebhook(t *testing.T) {
	f := newFixture()
	if rec := f.do(http.MethodPost, "/bot/webhook", `{"update_id":7}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/bot/webhook", `{"update_id":7}`, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "hook-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.updates.ids) != 1 || f.updates.ids[0] != 7 {
		t.Fatalf("update not dispatched: %v", f.updates.ids)
	}
}
