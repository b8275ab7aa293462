package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/secrets"
)

type memRepo struct {
	rows      map[domain.TokenType]memRow
	upsertErr error
}

type memRow struct {
	ciphertext string
	createdAt  time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[domain.TokenType]memRow)}
}

func (m *memRepo) GetToken(_ context.Context, t domain.TokenType) (string, time.Time, error) {
	row, ok := m.rows[t]
	if !ok {
		return "", time.Time{}, domain.ErrCredentialNotFound
	}
	return row.ciphertext, row.createdAt, nil
}

func (m *memRepo) UpsertToken(_ context.Context, t domain.TokenType, ciphertext string, createdAt time.Time) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows[t] = memRow{ciphertext: ciphertext, createdAt: createdAt}
	return nil
}

type fakeExchanger struct {
	calls int
	token string
	err   error
}

func (f *fakeExchanger) RefreshLongLivedToken(_ context.Context, _, _, token string) (domain.TokenExchange, error) {
	f.calls++
	if f.err != nil {
		return domain.TokenExchange{}, f.err
	}
	return domain.TokenExchange{AccessToken: f.token, ExpiresIn: 5184000}, nil
}

func (f *fakeExchanger) ExchangeShortLivedToken(ctx context.Context, appID, appSecret, token string) (domain.TokenExchange, error) {
	return f.RefreshLongLivedToken(ctx, appID, appSecret, token)
}

func newStore(t *testing.T, repo *memRepo) *Store {
	t.Helper()
	c, err := secrets.NewCipher(base64.StdEncoding.EncodeToString(make([]byte, 32)), zerolog.Nop())
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return NewStore(repo, c)
}

func TestStoreRoundTrip(t *testing.T) {
	repo := newMemRepo()
	store := newStore(t, repo)
	if _, err := store.Set(context.Background(), domain.TokenInstagram, "EAAG123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if repo.rows[domain.TokenInstagram].ciphertext == "EAAG123" {
		t.Fatal("token must not be stored in plaintext")
	}
	cred, err := store.Get(context.Background(), domain.TokenInstagram)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred.Token != "EAAG123" || cred.Type != domain.TokenInstagram {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestStoreErrors(t *testing.T) {
	repo := newMemRepo()
	store := newStore(t, repo)
	if _, err := store.Get(context.Background(), domain.TokenWhatsApp); !errors.Is(err, domain.ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	repo.rows[domain.TokenWhatsApp] = memRow{ciphertext: "garbage", createdAt: time.Now()}
	if _, err := store.Get(context.Background(), domain.TokenWhatsApp); !errors.Is(err, domain.ErrCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if _, err := store.Set(context.Background(), domain.TokenType("X"), "t"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStoreSetRejectsPaddedToken(t *testing.T) {
	for _, token := range []string{"", "  \n", " EAAG123", "EAAG123\n", "\tEAAG123 "} {
		repo := newMemRepo()
		store := newStore(t, repo)
		if _, err := store.Set(context.Background(), domain.TokenInstagram, token); !errors.Is(err, domain.ErrCredential) {
			t.Fatalf("token %q: expected credential error, got %v", token, err)
		}
		if len(repo.rows) != 0 {
			t.Fatalf("token %q must not be stored", token)
		}
	}
}

func TestEnsureFreshThreshold(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		age         time.Duration
		wantRefresh bool
	}{
		{"56 days old", 56 * 24 * time.Hour, true},
		{"exactly 55 days", 55 * 24 * time.Hour, true},
		{"10 days old", 10 * 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			store := newStore(t, repo)
			store.now = func() time.Time { return now }
			ex := &fakeExchanger{token: "fresh"}
			m := NewManager(store, ex, "app", "secret", 0, zerolog.Nop())
			m.now = func() time.Time { return now }

			in := domain.Credential{Type: domain.TokenInstagram, Token: "old", CreatedAt: now.Add(-tt.age)}
			out, err := m.EnsureFresh(context.Background(), in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantRefresh {
				if ex.calls != 0 || out != in {
					t.Fatalf("expected credential unchanged without exchange, got %+v (%d calls)", out, ex.calls)
				}
				return
			}
			if ex.calls != 1 || out.Token != "fresh" || !out.CreatedAt.Equal(now) {
				t.Fatalf("expected refreshed credential, got %+v (%d calls)", out, ex.calls)
			}
			stored, err := store.Get(context.Background(), domain.TokenInstagram)
			if err != nil || stored.Token != "fresh" {
				t.Fatalf("expected refreshed token to be persisted, got %+v %v", stored, err)
			}
		})
	}
}

func TestEnsureFreshFailures(t *testing.T) {
	old := domain.Credential{Type: domain.TokenInstagram, Token: "old", CreatedAt: time.Now().Add(-60 * 24 * time.Hour)}

	repo := newMemRepo()
	m := NewManager(newStore(t, repo), &fakeExchanger{err: errors.New("graph 400")}, "app", "secret", 0, zerolog.Nop())
	if _, err := m.EnsureFresh(context.Background(), old); !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected refresh failure on exchange error, got %v", err)
	}

	repo = newMemRepo()
	repo.upsertErr = errors.New("db down")
	m = NewManager(newStore(t, repo), &fakeExchanger{token: "fresh"}, "app", "secret", 0, zerolog.Nop())
	if _, err := m.EnsureFresh(context.Background(), old); !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected refresh failure on persist error, got %v", err)
	}
}

func TestTokenSkipsRefreshForWhatsApp(t *testing.T) {
	repo := newMemRepo()
	store := newStore(t, repo)
	if _, err := store.Set(context.Background(), domain.TokenWhatsApp, "wa"); err != nil {
		t.Fatalf("set: %v", err)
	}
	repo.rows[domain.TokenWhatsApp] = memRow{ciphertext: repo.rows[domain.TokenWhatsApp].ciphertext, createdAt: time.Now().Add(-400 * 24 * time.Hour)}
	ex := &fakeExchanger{token: "never"}
	m := NewManager(store, ex, "app", "secret", 0, zerolog.Nop())
	tok, err := m.Token(context.Background(), domain.TokenWhatsApp)
	if err != nil || tok != "wa" || ex.calls != 0 {
		t.Fatalf("expected stored whatsapp token without refresh, got %q %v (%d calls)", tok, err, ex.calls)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("EAAGabcdefghijklmnop"); got != "EAAGab********mnop" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := Mask("short"); got != "*****" {
		t.Fatalf("unexpected short mask %q", got)
	}
}
