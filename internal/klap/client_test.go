package klap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, "test-key", 1000)
	return client, server
}

func TestCreateTaskSendsBearerToken(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	var gotBody createTaskRequest
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Status: StatusProcessing, OutputID: "folder-1"})
	}))
	defer server.Close()

	task, err := client.CreateTask(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("create task failed: %v", err)
	}
	if task.ID != "task-1" || task.OutputID != "folder-1" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected authorization header: %s", gotAuth)
	}
	if gotMethod != http.MethodPost || gotPath != "/tasks/video-to-shorts" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotBody.SourceVideoURL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestGetTaskAndExportPaths(t *testing.T) {
	paths := []string{}
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/tasks/task-1":
			_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Status: StatusReady, OutputID: "folder-1"})
		case "/projects/folder-1":
			_ = json.NewEncoder(w).Encode([]Clip{{ID: "clip-1", ViralityScore: 0.7}})
		case "/projects/folder-1/clip-1/exports":
			_ = json.NewEncoder(w).Encode(Export{ID: "export-1", Status: StatusProcessing})
		case "/projects/folder-1/clip-1/exports/export-1":
			_ = json.NewEncoder(w).Encode(Export{ID: "export-1", Status: StatusReady, SrcURL: "https://cdn.example.com/clip.mp4"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	ctx := context.Background()

	task, err := client.GetTask(ctx, "task-1")
	if err != nil || task.Status != StatusReady {
		t.Fatalf("get task failed: %+v %v", task, err)
	}
	clips, err := client.ListClips(ctx, "folder-1")
	if err != nil || len(clips) != 1 || clips[0].ID != "clip-1" {
		t.Fatalf("list clips failed: %+v %v", clips, err)
	}
	export, err := client.CreateExport(ctx, "folder-1", "clip-1")
	if err != nil || export.ID != "export-1" {
		t.Fatalf("create export failed: %+v %v", export, err)
	}
	export, err = client.GetExport(ctx, "folder-1", "clip-1", "export-1")
	if err != nil || export.Status != StatusReady || export.SrcURL == "" {
		t.Fatalf("get export failed: %+v %v", export, err)
	}

	want := []string{
		"/tasks/task-1",
		"/projects/folder-1",
		"/projects/folder-1/clip-1/exports",
		"/projects/folder-1/clip-1/exports/export-1",
	}
	if len(paths) != len(want) {
		t.Fatalf("unexpected paths: %#v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
}

func TestNon2xxIsTransient(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := client.GetTask(context.Background(), "task-1")
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if transient.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected status code: %d", transient.StatusCode)
	}
}

func TestNonJSONIsProtocolViolation(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer server.Close()

	_, err := client.GetTask(context.Background(), "task-1")
	var proto *ProtocolError
	if !errors.As(err, &proto) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestMalformedJSONIsProtocolViolation(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := client.GetTask(context.Background(), "task-1")
	var proto *ProtocolError
	if !errors.As(err, &proto) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 接続先を即座に落とす

	_, err := client.GetTask(context.Background(), "task-1")
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}
