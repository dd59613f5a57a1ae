package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, context.Context) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return NewClient(WithBaseURL(server.URL+"/"), WithHTTPClient(server.Client())), ctx
}

func TestClientVersion(t *testing.T) {
	client, ctx := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("  test-version  "))
	})

	version, err := client.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "test-version" {
		t.Fatalf("expected trimmed version, got %q", version)
	}
}

func TestClientTaskRequests(t *testing.T) {
	client, ctx := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case http.MethodPost + " /tasks":
			var req schemas.TaskCreateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(store.Task{ID: "t1", ProjectID: req.ProjectID, Title: req.Title, Status: store.TaskStatusTodo})
		case http.MethodGet + " /tasks":
			q := r.URL.Query()
			if q.Get("project_id") != "p1" || q.Get("status") != "todo,inreview" || q.Get("limit") != "5" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode([]store.Task{{ID: "t1"}})
		case http.MethodDelete + " /tasks/t1":
			_ = json.NewEncoder(w).Encode(schemas.TaskDeleteResponse{Deleted: true, ID: "t1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	task, err := client.CreateTask(ctx, schemas.TaskCreateRequest{ProjectID: "p1", Title: "Write docs"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID != "t1" || task.Title != "Write docs" {
		t.Fatalf("unexpected task %+v", task)
	}

	list, err := client.ListTasks(ctx, ListTasksParams{ProjectID: "p1", Statuses: []string{"todo", "inreview"}, Limit: 5})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one task, got %d", len(list))
	}

	if err := client.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
}

func TestClientAPIError(t *testing.T) {
	client, ctx := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"status":"failed","code":"not_found","message":"task not found"}`)
	})

	_, err := client.GetTask(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "not_found" || apiErr.Message != "task not found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !IsNotFound(err) {
		t.Fatalf("expected IsNotFound")
	}
}

func TestClientNonJSONError(t *testing.T) {
	client, ctx := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream broke")
	})

	_, err := client.ListProjects(ctx)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestClientShutdown(t *testing.T) {
	client, ctx := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/shutdown" {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	if err := client.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestClientRedeliverPath(t *testing.T) {
	var got string
	client, ctx := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(store.Delivery{ID: "d2", WebhookID: "w1", Status: store.DeliveryStatusPending})
	})
	delivery, err := client.Redeliver(ctx, "w1", "d1")
	if err != nil {
		t.Fatalf("Redeliver: %v", err)
	}
	if got != "POST /webhooks/w1/deliveries/d1/retry" {
		t.Fatalf("unexpected request %q", got)
	}
	if delivery.ID != "d2" {
		t.Fatalf("unexpected delivery %+v", delivery)
	}
}

func TestIsRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("v1"))
	}))
	defer server.Close()

	if !IsRunning(server.URL) {
		t.Fatalf("expected server to be running")
	}
	if IsRunning("") {
		t.Fatalf("expected empty url to report not running")
	}
}

func TestWaitForStartGivesUpOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if WaitForStart(ctx, "http://127.0.0.1:1", nil) {
		t.Fatalf("expected WaitForStart to fail")
	}
}
