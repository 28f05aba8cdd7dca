package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/images/generations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization header: got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type: got %q", got)
		}
		var req ImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad json: %v", err)
		}
		want := ImageRequest{Prompt: "a red fox", N: 1, Size: "1024x1024"}
		if diff := cmp.Diff(want, req); diff != "" {
			t.Errorf("request mismatch (-want +got):\n%s", diff)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data": []map[string]string{
				{"url": "https://img.example/1.png"},
				{"url": "https://img.example/2.png"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", time.Second)
	res, err := c.GenerateImage(context.Background(), "sk-test", "a red fox", 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &GenerationResult{
		StatusCode: http.StatusOK,
		URL:        "https://img.example/1.png",
		URLs:       []string{"https://img.example/1.png", "https://img.example/2.png"},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateImageSendsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ImageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "dall-e-3" || req.N != 2 || req.Size != "512x512" {
			t.Errorf("unexpected payload: %+v", req)
		}
		_, _ = w.Write([]byte(`{"data":[{"url":"u"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithImageModel("dall-e-3"))
	if _, err := c.GenerateImage(context.Background(), "k", "p", 2, "512x512"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateImageErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantMsg  string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided: sk-****"}}`, KindAuth, ""},
		{"forbidden", http.StatusForbidden, `{}`, KindAuth, ""},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, KindUpstream, "slow down"},
		{"server error", http.StatusInternalServerError, `oops`, KindUpstream, ""},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"size is invalid"}}`, KindUpstream, "size is invalid"},
		{"not json", http.StatusOK, `<html>`, KindMalformedResponse, ""},
		{"empty data", http.StatusOK, `{"data":[]}`, KindMalformedResponse, ""},
		{"missing url", http.StatusOK, `{"data":[{"b64_json":"xx"}]}`, KindMalformedResponse, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second)
			_, err := c.GenerateImage(context.Background(), "sk-secret", "p", 1, "1024x1024")
			var ge *GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if ge.Kind != tt.wantKind {
				t.Fatalf("kind: got %v, want %v", ge.Kind, tt.wantKind)
			}
			if ge.Message != tt.wantMsg {
				t.Fatalf("message: got %q, want %q", ge.Message, tt.wantMsg)
			}
			if strings.Contains(ge.Error(), "sk-") {
				t.Fatalf("error leaks credential material: %q", ge.Error())
			}
			if tt.status != http.StatusOK && ge.StatusCode != tt.status {
				t.Fatalf("status: got %d, want %d", ge.StatusCode, tt.status)
			}
		})
	}
}

func TestGenerateImageNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	_, err := c.GenerateImage(context.Background(), "k", "p", 1, "")
	if kind, ok := KindOf(err); !ok || kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestGenerateImageTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond)
	_, err := c.GenerateImage(context.Background(), "k", "p", 1, "")
	if kind, ok := KindOf(err); !ok || kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad json: %v", err)
		}
		want := ChatRequest{
			Model: "gpt-3.5-turbo",
			Messages: []Message{
				{Role: RoleSystem, Content: "sys"},
				{Role: RoleUser, Content: "a cat riding a bike"},
			},
		}
		if diff := cmp.Diff(want, req); diff != "" {
			t.Errorf("request mismatch (-want +got):\n%s", diff)
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Cat Riding Bike"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.Complete(context.Background(), "k", "gpt-3.5-turbo", "sys", "a cat riding a bike")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Cat Riding Bike" {
		t.Fatalf("got %q", got)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Complete(context.Background(), "k", "m", "s", "u")
	if kind, ok := KindOf(err); !ok || kind != KindMalformedResponse {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("download must not send the credential")
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	c := NewClient("http://unused", time.Second)
	data, err := c.Download(context.Background(), srv.URL+"/img.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "jpegbytes" {
		t.Fatalf("got %q", data)
	}

	_, err = c.Download(context.Background(), srv.URL+"/missing")
	if kind, ok := KindOf(err); !ok || kind != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestDownloadRejectsOversizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := 16
		if r.URL.Path == "/big.jpg" {
			size = 17
		}
		_, _ = w.Write([]byte(strings.Repeat("x", size)))
	}))
	defer srv.Close()

	c := NewClient("http://unused", time.Second, WithMaxImageBytes(16))

	data, err := c.Download(context.Background(), srv.URL+"/fits.jpg")
	if err != nil || len(data) != 16 {
		t.Fatalf("image at the limit: got %d bytes, %v", len(data), err)
	}

	data, err = c.Download(context.Background(), srv.URL+"/big.jpg")
	if err == nil {
		t.Fatalf("expected an error for an oversized image, got %d bytes", len(data))
	}
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Kind != KindUpstream || ge.Message != "image too large" {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Fatal("no bytes may be returned for an oversized image")
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"aaé", 3, "aa"},
		{"aaé", 4, "aaé"},
		{"日本語", 7, "日本"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  *GenerationError
		want string
	}{
		{&GenerationError{Kind: KindAuth, StatusCode: 401}, "The API key was rejected."},
		{&GenerationError{Kind: KindNetwork}, "Could not reach the image service. Please try again."},
		{&GenerationError{Kind: KindUpstream, StatusCode: 429}, "The image service is rate limiting requests. Please wait and try again."},
		{&GenerationError{Kind: KindUpstream, StatusCode: 400, Message: "bad size"}, "The image service reported an error: bad size"},
		{&GenerationError{Kind: KindUpstream, StatusCode: 502}, "The image service reported an error (status 502)."},
	}
	for _, tt := range tests {
		if got := tt.err.UserMessage(); got != tt.want {
			t.Errorf("%v: got %q, want %q", tt.err.Kind, got, tt.want)
		}
	}
}
