package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snapflow/capshot/internal/resilience/classify"
)

func TestFetchOperationReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page content"))
	}))
	defer srv.Close()

	op := fetchOperation(srv.Client(), srv.URL)
	result, err := op(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.([]byte)) != "page content" {
		t.Errorf("body = %q, want page content", result)
	}
}

func TestFetchOperationClassifiesStatuses(t *testing.T) {
	tests := []struct {
		status    int
		category  classify.Category
		retryable bool
	}{
		{http.StatusInternalServerError, classify.CategoryNetwork, true},
		{http.StatusBadGateway, classify.CategoryNetwork, true},
		{http.StatusTooManyRequests, classify.CategoryNetwork, true},
		{http.StatusRequestTimeout, classify.CategoryTimeout, true},
		{http.StatusUnauthorized, classify.CategoryAuthentication, false},
		{http.StatusForbidden, classify.CategoryAuthentication, false},
		{http.StatusNotFound, classify.CategoryNetwork, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		op := fetchOperation(srv.Client(), srv.URL)
		_, err := op(context.Background())
		srv.Close()

		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}

		var cerr *classify.ClassifiedError
		if !errors.As(err, &cerr) {
			t.Errorf("status %d: error not pre-classified: %v", tt.status, err)
			continue
		}
		if cerr.Category != tt.category {
			t.Errorf("status %d: category = %v, want %v", tt.status, cerr.Category, tt.category)
		}
		if cerr.Retryable != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, cerr.Retryable, tt.retryable)
		}
		if cerr.StatusCode != tt.status {
			t.Errorf("status %d: status code = %d", tt.status, cerr.StatusCode)
		}
	}
}

func TestFetchOperationConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	op := fetchOperation(http.DefaultClient, url)
	_, err := op(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}

	got := classify.Classify(err)
	if got.Category != classify.CategoryNetwork || !got.Retryable {
		t.Errorf("connection error classified %v/retryable=%v, want network/true",
			got.Category, got.Retryable)
	}
}
