package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"ig-vote-bot/internal/domain"
)

type sleepRecorder struct {
	calls int
	total time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls++
	s.total += d
	return ctx.Err()
}

func newTestClient(t *testing.T, h http.HandlerFunc, sleeper *sleepRecorder) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Client().CloseIdleConnections()
		srv.Close()
	})
	opts := Options{
		BaseURL:          srv.URL,
		Version:          "v21.0",
		InstagramBaseURL: srv.URL + "/ig",
		HTTPClient:       srv.Client(),
		Logger:           zerolog.Nop(),
	}
	if sleeper != nil {
		opts.Sleep = sleeper.sleep
	}
	return NewClient(opts)
}

func TestPollContainerStatusFinishesOnThirdAttempt(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	var hits int32
	sleeper := &sleepRecorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v21.0/c-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("fields") != "status_code,status" {
			t.Errorf("unexpected fields %s", r.URL.Query().Get("fields"))
		}
		n := atomic.AddInt32(&hits, 1)
		switch n {
		case 1:
			_, _ = w.Write([]byte(`{"status_code":"IN_PROGRESS","id":"c-1"}`))
		case 2:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`upstream`))
		default:
			_, _ = w.Write([]byte(`{"status_code":"FINISHED","id":"c-1"}`))
		}
	}, sleeper)

	res, err := c.PollContainerStatus(context.Background(), PollParams{Token: "tok", ContainerID: "c-1", Interval: time.Second, MaxAttempts: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusFinished {
		t.Fatalf("expected FINISHED, got %s", res.Status)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.Attempts)
	}
	if sleeper.calls != 2 || sleeper.total != 2*time.Second {
		t.Fatalf("expected two 1s sleeps, got %d (%s)", sleeper.calls, sleeper.total)
	}
	if res.Last["status_code"] != StatusFinished {
		t.Fatalf("expected last response to be kept, got %v", res.Last)
	}
}

func TestPollContainerStatusTimeout(t *testing.T) {
	sleeper := &sleepRecorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
	}, sleeper)

	res, err := c.PollContainerStatus(context.Background(), PollParams{Token: "tok", ContainerID: "c-2", MaxAttempts: 4})
	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if res.Status != StatusTimeout || res.Attempts != 4 {
		t.Fatalf("expected TIMEOUT after 4 attempts, got %s/%d", res.Status, res.Attempts)
	}
	if sleeper.calls != 3 {
		t.Fatalf("expected no sleep after the last attempt, got %d sleeps", sleeper.calls)
	}
}

func TestPollContainerStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":"ERROR","status":"Error: media download failed"}`))
	}, &sleepRecorder{})

	res, err := c.PollContainerStatus(context.Background(), PollParams{Token: "tok", ContainerID: "c-3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusError || res.Last["status"] != "Error: media download failed" {
		t.Fatalf("expected ERROR with last body, got %+v", res)
	}
}

func TestPollContainerStatusCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.PollContainerStatus(ctx, PollParams{Token: "tok", ContainerID: "c-4", Interval: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestCreateMediaContainer(t *testing.T) {
	tests := []struct {
		name    string
		params  ContainerParams
		wantKey string
		absent  string
	}{
		{"image", ContainerParams{URL: "https://cdn/a.jpg", Caption: "hi"}, "image_url", "video_url"},
		{"video", ContainerParams{URL: "https://cdn/a.mp4", IsVideo: true, MediaType: MediaReels}, "video_url", "image_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/v21.0/1784/media" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				_ = r.ParseForm()
				if r.PostForm.Get(tt.wantKey) == "" || r.PostForm.Get(tt.absent) != "" {
					t.Errorf("unexpected form %v", r.PostForm)
				}
				if r.PostForm.Get("access_token") != "tok" {
					t.Errorf("missing access token")
				}
				_, _ = w.Write([]byte(`{"id":"17890"}`))
			}, nil)
			p := tt.params
			p.Token, p.AccountID = "tok", "1784"
			id, err := c.CreateMediaContainer(context.Background(), p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != "17890" {
				t.Fatalf("expected container id, got %s", id)
			}
		})
	}
}

func TestCreateCarouselParent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("media_type") != MediaCarousel || r.PostForm.Get("children") != "a,b" {
			t.Errorf("unexpected carousel form %v", r.PostForm)
		}
		if r.PostForm.Get("image_url") != "" {
			t.Errorf("carousel parent must not carry media url")
		}
		_, _ = w.Write([]byte(`{"id":"parent"}`))
	}, nil)
	id, err := c.CreateMediaContainer(context.Background(), ContainerParams{Token: "tok", AccountID: "1", MediaType: MediaCarousel, ChildrenIDs: []string{"a", "b"}})
	if err != nil || id != "parent" {
		t.Fatalf("unexpected result %s %v", id, err)
	}
}

func TestCreateMediaContainerErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid image url","type":"OAuthException","code":9004}}`))
	}, nil)
	_, err := c.CreateMediaContainer(context.Background(), ContainerParams{Token: "tok", AccountID: "1", URL: "x"})
	if !errors.Is(err, domain.ErrMediaCreation) {
		t.Fatalf("expected media creation error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 9004 || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected wrapped api error, got %v", err)
	}

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, nil)
	if _, err := c.CreateMediaContainer(context.Background(), ContainerParams{Token: "tok", AccountID: "1", URL: "x"}); !errors.Is(err, domain.ErrMediaCreation) {
		t.Fatalf("expected media creation error on missing id, got %v", err)
	}
}

func TestPublishContainer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.URL.Path != "/v21.0/1/media_publish" || r.PostForm.Get("creation_id") != "c-9" || r.PostForm.Get("sticker_asset_id") != "m-1" {
			t.Errorf("unexpected publish request %s %v", r.URL.Path, r.PostForm)
		}
		_, _ = w.Write([]byte(`{"id":"m-2"}`))
	}, nil)
	id, err := c.PublishContainer(context.Background(), PublishParams{Token: "tok", AccountID: "1", ContainerID: "c-9", StickerAssetID: "m-1"})
	if err != nil || id != "m-2" {
		t.Fatalf("unexpected result %s %v", id, err)
	}

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)
	if _, err := c.PublishContainer(context.Background(), PublishParams{Token: "tok", AccountID: "1", ContainerID: "c-9"}); !errors.Is(err, domain.ErrPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestFetchMetricsAndPermalink(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("fields") {
		case "like_count,comments_count":
			_, _ = w.Write([]byte(`{"like_count":12,"comments_count":3,"id":"m"}`))
		case "permalink":
			_, _ = w.Write([]byte(`{"permalink":"https://www.instagram.com/p/abc/","id":"m"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}, nil)
	m, err := c.FetchMetrics(context.Background(), "tok", "m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.LikeCount != 12 || m.CommentsCount != 3 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	link, err := c.Permalink(context.Background(), "tok", "m")
	if err != nil || link != "https://www.instagram.com/p/abc/" {
		t.Fatalf("unexpected permalink %s %v", link, err)
	}
	if _, err := c.FetchFields(context.Background(), "tok", "m", "bogus"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestRefreshLongLivedToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v21.0/oauth/access_token" || q.Get("grant_type") != "fb_exchange_token" || q.Get("fb_exchange_token") != "old" {
			t.Errorf("unexpected refresh request %s %v", r.URL.Path, q)
		}
		_, _ = w.Write([]byte(`{"access_token":"new","token_type":"bearer","expires_in":5183944}`))
	}, nil)
	res, err := c.RefreshLongLivedToken(context.Background(), "app", "secret", "old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AccessToken != "new" || res.ExpiresIn != 5183944 {
		t.Fatalf("unexpected exchange %+v", res)
	}
}

func TestExchangeShortLivedTokenFallsBackToInstagram(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ig/access_token" {
			if r.URL.Query().Get("grant_type") != "ig_exchange_token" {
				t.Errorf("unexpected grant type")
			}
			_, _ = w.Write([]byte(`{"access_token":"ig-long","token_type":"bearer","expires_in":100}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}, nil)
	res, err := c.ExchangeShortLivedToken(context.Background(), "app", "secret", "short")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AccessToken != "ig-long" {
		t.Fatalf("expected instagram fallback token, got %+v", res)
	}
}
