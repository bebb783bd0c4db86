package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Token() (string, error) { return "", errors.New("no credential") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_SendAttachesBearerAndJSON(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType, gotMethod, gotPath, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		gotPath = r.URL.Path

		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok-1"), quietLogger())

	err := c.Send(context.Background(), http.MethodPost, "tasks", []byte(`{"title":"X"}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}

	if gotContentType != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", gotContentType)
	}

	if gotMethod != http.MethodPost || gotPath != "/tasks" {
		t.Fatalf("request = %s %s, want POST /tasks", gotMethod, gotPath)
	}

	if gotBody != `{"title":"X"}` {
		t.Fatalf("body = %q, want payload", gotBody)
	}
}

func TestClient_NoBodySkipsContentType(t *testing.T) {
	t.Parallel()

	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok"), quietLogger())

	if err := c.Send(context.Background(), http.MethodDelete, "tasks/1", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotContentType != "" {
		t.Fatalf("Content-Type = %q for empty body, want unset", gotContentType)
	}
}

func TestClient_NonSuccessBecomesError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("request-id", "req-9")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, staticToken("tok"), quietLogger())

	err := c.Send(context.Background(), http.MethodPut, "tasks/1", []byte(`{}`))
	if err == nil {
		t.Fatal("Send: want error for 502")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *Error", err)
	}

	if apiErr.StatusCode != http.StatusBadGateway || apiErr.RequestID != "req-9" {
		t.Fatalf("Error = %+v, want 502/req-9", apiErr)
	}
}

func TestClient_CredentialFaultPropagates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not reach the server without a credential")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, failingToken{}, quietLogger())

	if err := c.Send(context.Background(), http.MethodPost, "tasks", nil); err == nil {
		t.Fatal("Send: want credential error")
	}
}

func TestIsRetryable_Classification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", errors.New("connection refused"), true},
		{"throttled", &Error{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &Error{StatusCode: http.StatusInternalServerError}, true},
		{"bad request", &Error{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &Error{StatusCode: http.StatusUnauthorized}, false},
		{"canceled", context.Canceled, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
