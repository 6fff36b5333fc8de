package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestListScheduled_QueryParameters(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"t1","title":"Run","scheduled_day":"2024-06-10","scheduled_time":"09:00:00","completed":false,"source":"manual"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	tasks, err := client.ListScheduled(context.Background(), "user-1", "2024-06-10", "2024-06-24")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}

	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	day, clock, ok := tasks[0].Scheduled()
	if !ok || day != "2024-06-10" || clock != "09:00:00" {
		t.Fatalf("unexpected scheduled pair: %q %q %v", day, clock, ok)
	}

	values := map[string]string{
		"user_id": "user-1",
		"status":  "active",
		"from":    "2024-06-10",
		"to":      "2024-06-24",
	}
	parsed, err := http.NewRequest(http.MethodGet, "/?"+gotQuery, nil)
	if err != nil {
		t.Fatalf("parse recorded query: %v", err)
	}
	for key, want := range values {
		if got := parsed.URL.Query().Get(key); got != want {
			t.Fatalf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestListScheduled_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	tasks, err := client.ListScheduled(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty task list, got %d", len(tasks))
	}
	if calls.Load() < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", calls.Load())
	}
}

func TestListScheduled_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "missing user", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	if _, err := client.ListScheduled(context.Background(), "user-1", "", ""); err == nil {
		t.Fatalf("expected error for 422 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt for client error, got %d", calls.Load())
	}
}

func TestTask_ScheduledRequiresBothFields(t *testing.T) {
	t.Parallel()

	day := "2024-06-10"
	clock := "09:00"
	empty := "  "

	tests := []struct {
		name string
		task Task
		ok   bool
	}{
		{name: "both_present", task: Task{ScheduledDay: &day, ScheduledTime: &clock}, ok: true},
		{name: "missing_time", task: Task{ScheduledDay: &day}, ok: false},
		{name: "missing_day", task: Task{ScheduledTime: &clock}, ok: false},
		{name: "blank_day", task: Task{ScheduledDay: &empty, ScheduledTime: &clock}, ok: false},
		{name: "unscheduled", task: Task{}, ok: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, ok := tc.task.Scheduled(); ok != tc.ok {
				t.Fatalf("Scheduled() ok = %v, want %v", ok, tc.ok)
			}
		})
	}
}
