package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	httpinfra "ig-vote-bot/internal/infra/http"
	"ig-vote-bot/internal/usecase/pipeline"
	"ig-vote-bot/internal/usecase/voting"
)

type roundService interface {
	Run(ctx context.Context) (voting.RunResult, error)
	VoteByURL(ctx context.Context, voterID, imageURL string) (domain.VotingImage, error)
}

type updateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

type api struct {
	log        zerolog.Logger
	rounds     roundService
	updates    updateHandler
	posts      domain.PostQueue
	page       string
	dailyPosts int
	report     httpinfra.FailureReporter
	now        func() time.Time
}

type voteRequest struct {
	URL     string `json:"url"`
	VoterID string `json:"voter_id"`
}

type voteResponse struct {
	URL   string `json:"url"`
	Votes int    `json:"votes"`
}

type cronResponse struct {
	Enqueued []string `json:"enqueued"`
}

func (a *api) mount(r chi.Router, cronSecret, webhookSecret string) {
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	// voter_id приходит от доверенного бэкофиса, поэтому голос по URL требует того же секрета.
	r.Group(func(r chi.Router) {
		r.Use(httpinfra.BearerAuthMiddleware(cronSecret))
		r.Post("/api/vote", a.wrap("/api/vote", a.vote))
		r.Get("/api/managevoting", a.wrap("/api/managevoting", a.manageVoting))
		r.Get("/api/cron", a.wrap("/api/cron", a.cron))
	})
	r.With(httpinfra.WebhookSecretMiddleware(webhookSecret)).Post("/bot/webhook", a.wrap("/bot/webhook", a.webhook))
}

func (a *api) wrap(route string, h httpinfra.HandlerFunc) http.HandlerFunc {
	return httpinfra.WithErrorReporting(a.log, route, a.report, h)
}

func (a *api) manageVoting(w http.ResponseWriter, r *http.Request) error {
	res, err := a.rounds.Run(r.Context())
	if err != nil {
		return err
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
	return nil
}

func (a *api) vote(w http.ResponseWriter, r *http.Request) error {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return httpinfra.BadRequest(fmt.Errorf("некорректное тело запроса: %w", err))
	}
	req.URL = strings.TrimSpace(req.URL)
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return httpinfra.BadRequest(errors.New("url должен быть http(s) ссылкой"))
	}
	if strings.TrimSpace(req.VoterID) == "" {
		return httpinfra.BadRequest(errors.New("voter_id обязателен"))
	}
	image, err := a.rounds.VoteByURL(r.Context(), req.VoterID, req.URL)
	switch {
	case errors.Is(err, domain.ErrDuplicateVote):
		return &httpinfra.StatusError{Code: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrImageNotFound):
		return &httpinfra.StatusError{Code: http.StatusNotFound, Err: err}
	case err != nil:
		return err
	}
	httpinfra.WriteJSON(w, http.StatusOK, voteResponse{URL: image.ImageURL, Votes: image.Votes})
	return nil
}

func (a *api) cron(w http.ResponseWriter, r *http.Request) error {
	jobs, err := pipeline.EnqueueDaily(r.Context(), a.posts, a.page, a.dailyPosts, domain.PostCauseCron, a.now())
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	if err != nil {
		a.log.Error().Err(err).Strs("enqueued", ids).Msg("voting: не все задачи поставлены")
		return err
	}
	httpinfra.WriteJSON(w, http.StatusAccepted, cronResponse{Enqueued: ids})
	return nil
}

func (a *api) webhook(w http.ResponseWriter, r *http.Request) error {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		return httpinfra.BadRequest(err)
	}
	a.updates.HandleUpdate(r.Context(), update)
	w.WriteHeader(http.StatusOK)
	return nil
}
