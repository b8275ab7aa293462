package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ig-vote-bot/internal/domain"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestGenerateRawImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "a cat" || req.Width != 1024 {
			t.Errorf("unexpected request %+v", req)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	c, err := New(Options{URL: srv.URL, APIKey: "k", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	img, err := c.Generate(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.ContentType != "image/png" || len(img.Data) != len(pngHeader) {
		t.Fatalf("unexpected image %+v", img)
	}
}

func TestGenerateBase64JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)})
	}))
	defer srv.Close()

	c, _ := New(Options{URL: srv.URL, HTTPClient: srv.Client()})
	img, err := c.Generate(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.ContentType != "image/png" {
		t.Fatalf("expected detected png, got %q", img.ContentType)
	}
}

func TestGenerateURLDownload(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/generate", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"url": srv.URL + "/out.png"})
	})
	mux.HandleFunc("/out.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	})

	c, _ := New(Options{URL: srv.URL + "/generate", HTTPClient: srv.Client()})
	img, err := c.Generate(context.Background(), "a cat")
	if err != nil || len(img.Data) != len(pngHeader) {
		t.Fatalf("unexpected %+v %v", img, err)
	}
}

func TestGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") == "json" {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "nsfw"})
			return
		}
		http.Error(w, "gpu busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := New(Options{URL: srv.URL, HTTPClient: srv.Client()})
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Fatalf("expected status error")
	}
	c, _ = New(Options{URL: srv.URL + "?mode=json", HTTPClient: srv.Client()})
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Fatalf("expected backend error")
	}
	if _, err := c.Generate(context.Background(), " "); !errors.Is(err, domain.ErrEmptyPrompt) {
		t.Fatalf("expected empty prompt, got %v", err)
	}
	if _, err := New(Options{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
