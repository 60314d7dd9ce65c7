package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pricepatrol/internal/config"
	"pricepatrol/internal/types"
)

func TestWorkerClientDispatch(t *testing.T) {
	var got HandoffRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wc := NewWorkerClient(&config.WorkerConfig{URL: srv.URL, Secret: "s3cret"}, testLogger)
	job := &types.Job{ID: "j1", Query: "iphone 15", Category: "mobiles"}
	if err := wc.Dispatch(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer s3cret" {
		t.Errorf("authorization = %q", auth)
	}
	if got.JobID != "j1" || got.Query != "iphone 15" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWorkerClientDispatchRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	wc := NewWorkerClient(&config.WorkerConfig{URL: srv.URL, Secret: "wrong"}, testLogger)
	if err := wc.Dispatch(context.Background(), &types.Job{ID: "j1"}); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}
