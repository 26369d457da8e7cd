package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ratsinfo/oparl-pipeline/internal/retry"
)

func TestIteratePapers_followsNextLink(t *testing.T) {
	var systemURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/system", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"body": systemURL + "/body"})
	})
	mux.HandleFunc("/body", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"paper": systemURL + "/paper?page=1"})
	})
	mux.HandleFunc("/paper", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "1" {
			w.Write([]byte(`{"data":[{"id":"p1","name":"Erstes Papier","date":"2024-01-01T00:00:00Z"}],"links":{"next":"` + systemURL + `/paper?page=2"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"id":"p2","name":"Zweites Papier","date":"2024-01-02T00:00:00Z"}],"links":{}}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	systemURL = server.URL

	c := NewClient(server.URL+"/system", 5*time.Second)
	var ids []string
	for paper, err := range c.IteratePapers(context.Background(), "augsburg", time.Time{}, time.Time{}, 0) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, paper.ID)
	}

	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
		t.Fatalf("got ids %v, want [p1 p2]", ids)
	}
}

func TestIteratePapers_pageLimitStopsEarly(t *testing.T) {
	var systemURL string
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/system", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"body": systemURL + "/body"})
	})
	mux.HandleFunc("/body", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"paper": systemURL + "/paper"})
	})
	mux.HandleFunc("/paper", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data":[{"id":"p` + string(rune('0'+calls)) + `","name":"x","date":"2024-01-01T00:00:00Z"}],"links":{"next":"` + systemURL + `/paper"}}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	systemURL = server.URL

	c := NewClient(server.URL+"/system", 5*time.Second)
	count := 0
	for _, err := range c.IteratePapers(context.Background(), "augsburg", time.Time{}, time.Time{}, 1) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count++
	}
	if count != 1 {
		t.Fatalf("got %d papers, want 1 (page_limit=1)", count)
	}
}

func TestIteratePapers_terminalFailureHaltsSequence(t *testing.T) {
	var systemURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/system", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"body": systemURL + "/body"})
	})
	mux.HandleFunc("/body", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"paper": systemURL + "/paper"})
	})
	mux.HandleFunc("/paper", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	systemURL = server.URL

	c := NewClient(server.URL+"/system", 5*time.Second, WithRetryPolicy(noRetryPolicy()))
	var sawErr error
	for _, err := range c.IteratePapers(context.Background(), "augsburg", time.Time{}, time.Time{}, 0) {
		if err != nil {
			sawErr = err
			break
		}
	}
	if sawErr == nil {
		t.Fatal("expected a FetchError, got nil")
	}
	var fe *FetchError
	if !asFetchError(sawErr, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", sawErr, sawErr)
	}
	if fe.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", fe.StatusCode)
	}
}

func noRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Retryable: IsRetryable}
}

func asFetchError(err error, target **FetchError) bool {
	fe, ok := err.(*FetchError)
	if !ok {
		return false
	}
	*target = fe
	return true
}
