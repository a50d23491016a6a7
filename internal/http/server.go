package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Reuben-Percival/parut/internal/log"
	"github.com/Reuben-Percival/parut/internal/paru"
	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/Reuben-Percival/parut/pkg/queue"
)

// StartServer serves the polling API an external UI drives the queue with.
// All endpoints are synchronous and in-memory only; clients re-poll GET
// /tasks for state changes.
func StartServer(port string, q *queue.TaskQueue, outputLimit func() int) error {
	log.GetLogger().Infof("Starting parut server on :%s", port)
	return http.ListenAndServe(":"+port, Handler(q, outputLimit))
}

// Handler returns the route table, separated from StartServer so tests can
// drive it through httptest. outputLimit supplies the configured output cap
// for the synthetic line a cancellation appends.
func Handler(q *queue.TaskQueue, outputLimit func() int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/tasks", tasksHandler(q))
	mux.HandleFunc("/tasks/cancel", cancelHandler(q, outputLimit))
	mux.HandleFunc("/tasks/retry", retryHandler(q))
	mux.HandleFunc("/tasks/move", moveHandler(q))
	mux.HandleFunc("/tasks/clear", clearHandler(q))
	mux.HandleFunc("/cleanup-estimate", estimateHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "parut server is running")
}

func tasksHandler(q *queue.TaskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, q.Snapshot())
		case http.MethodPost:
			enqueueTask(w, r, q)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func enqueueTask(w http.ResponseWriter, r *http.Request, q *queue.TaskQueue) {
	kind, err := models.ParseKind(r.FormValue("kind"))
	if err != nil {
		log.GetLogger().Errorf("Rejected enqueue: %v", err)
		http.Error(w, fmt.Sprintf("Invalid 'kind' parameter: %v", err), http.StatusBadRequest)
		return
	}
	target := r.FormValue("target")
	if kind.NeedsTarget() && target == "" {
		http.Error(w, "Missing 'target' parameter", http.StatusBadRequest)
		return
	}
	if !kind.NeedsTarget() {
		target = models.SystemTarget
	}
	id := q.Add(kind, target)
	log.GetLogger().Infof("Enqueued task %d: %s %s", id, kind, target)
	writeJSON(w, map[string]int64{"id": id})
}

// cancelHandler requests cancellation of a running task, or drops the task
// outright when it has not started yet.
func cancelHandler(q *queue.TaskQueue, outputLimit func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}
		canceled := q.RequestCancel(id, outputLimit()) || q.CancelQueued(id)
		if !canceled {
			http.Error(w, "Task not found or not cancelable", http.StatusConflict)
			return
		}
		writeJSON(w, map[string]bool{"canceled": true})
	}
}

func retryHandler(q *queue.TaskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}
		newID, retried := q.Retry(id)
		if !retried {
			http.Error(w, "Task not found or not failed", http.StatusConflict)
			return
		}
		log.GetLogger().Infof("Retrying task %d as task %d", id, newID)
		writeJSON(w, map[string]int64{"id": newID})
	}
}

func moveHandler(q *queue.TaskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}
		var moved bool
		switch dir := r.FormValue("dir"); dir {
		case "up":
			moved = q.MoveUp(id)
		case "down":
			moved = q.MoveDown(id)
		case "now":
			moved = q.RunNow(id)
		default:
			http.Error(w, "Invalid 'dir' parameter, expected up, down or now", http.StatusBadRequest)
			return
		}
		if !moved {
			http.Error(w, "Task not found or not queued", http.StatusConflict)
			return
		}
		writeJSON(w, map[string]bool{"moved": true})
	}
}

func clearHandler(q *queue.TaskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q.ClearCompleted()
		writeJSON(w, map[string]bool{"cleared": true})
	}
}

func estimateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, paru.EstimateCleanup())
}

func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return 0, false
	}
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid 'id' parameter", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
