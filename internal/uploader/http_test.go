package uploader_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sitesync/internal/config"
	"sitesync/internal/uploader"
)

func TestHTTPUploadSendsPayload(t *testing.T) {
	var gotPath, gotAuth, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u, err := uploader.NewHTTP(config.HTTP{BaseURL: srv.URL + "/store/", Token: "secret"}, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTP failed: %v", err)
	}
	loc, err := u.Upload(context.Background(), []byte("payload"), "projects/a b/1_c.jpg")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotPath != "/store/projects/a b/1_c.jpg" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if string(gotBody) != "payload" {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if loc != srv.URL+"/store/projects/a%20b/1_c.jpg" {
		t.Fatalf("unexpected locator %q", loc)
	}
}

func TestHTTPUploadUsesLocationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://cdn.example.com/objects/42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u, err := uploader.NewHTTP(config.HTTP{BaseURL: srv.URL, Method: "post"}, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTP failed: %v", err)
	}
	loc, err := u.Upload(context.Background(), []byte("x"), "a.jpg")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if loc != "https://cdn.example.com/objects/42" {
		t.Fatalf("unexpected locator %q", loc)
	}
}

func TestHTTPUploadClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{status: http.StatusBadRequest, permanent: true},
		{status: http.StatusUnauthorized, permanent: false},
		{status: http.StatusForbidden, permanent: false},
		{status: http.StatusNotFound, permanent: true},
		{status: http.StatusRequestTimeout, permanent: false},
		{status: http.StatusTooManyRequests, permanent: false},
		{status: http.StatusInternalServerError, permanent: false},
		{status: http.StatusBadGateway, permanent: false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			u, err := uploader.NewHTTP(config.HTTP{BaseURL: srv.URL}, srv.Client())
			if err != nil {
				t.Fatalf("NewHTTP failed: %v", err)
			}
			_, err = u.Upload(context.Background(), []byte("x"), "a.jpg")
			if err == nil {
				t.Fatal("expected error")
			}
			if !uploader.IsStatus(err, tt.status) {
				t.Fatalf("expected status %d in error, got %v", tt.status, err)
			}
			if uploader.IsPermanent(err) != tt.permanent {
				t.Fatalf("IsPermanent = %v, want %v", uploader.IsPermanent(err), tt.permanent)
			}
			auth := tt.status == http.StatusUnauthorized || tt.status == http.StatusForbidden
			if uploader.IsAuthFailure(err) != auth {
				t.Fatalf("IsAuthFailure = %v, want %v", uploader.IsAuthFailure(err), auth)
			}
		})
	}
}

func TestHTTPUploadTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	u, err := uploader.NewHTTP(config.HTTP{BaseURL: url}, nil)
	if err != nil {
		t.Fatalf("NewHTTP failed: %v", err)
	}
	_, err = u.Upload(context.Background(), []byte("x"), "a.jpg")
	if err == nil || uploader.IsPermanent(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestHTTPUploadHonorsCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	u, err := uploader.NewHTTP(config.HTTP{BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTP failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = u.Upload(ctx, []byte("x"), "a.jpg")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewHTTPRejectsBadScheme(t *testing.T) {
	if _, err := uploader.NewHTTP(config.HTTP{BaseURL: "ftp://example.com"}, nil); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}
