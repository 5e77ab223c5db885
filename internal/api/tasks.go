package api

import (
	"fmt"
	"net/http"

	"github.com/bryanchriswhite/TaskSwitcher/internal/store"
	"github.com/gorilla/mux"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.deps.Tasks.ListTasks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		ParentID string `json:"parent_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.deps.Tasks.CreateTask(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.deps.Tasks.GetTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      *string `json:"name"`
		ParentID  *string `json:"parent_id"`
		Order     *int    `json:"order"`
		Completed *bool   `json:"completed"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.deps.Tasks.UpdateTask(r.Context(), mux.Vars(r)["id"], store.TaskUpdate{
		Name:      req.Name,
		ParentID:  req.ParentID,
		Order:     req.Order,
		Completed: req.Completed,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.DeleteTask(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTaskWindows(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.deps.Tasks.GetTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	windows, err := s.deps.Tasks.GetTaskWindows(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (s *Server) handleAddTaskWindow(w http.ResponseWriter, r *http.Request) {
	var tw store.TaskWindow
	if err := decodeBody(r, &tw); err != nil {
		writeError(w, err)
		return
	}
	tw.TaskID = mux.Vars(r)["id"]

	added, err := s.deps.Tasks.AddTaskWindow(r.Context(), tw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleRemoveTaskWindow(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.RemoveTaskWindow(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwitchTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Switcher == nil {
		writeError(w, fmt.Errorf("task switching is not configured"))
		return
	}

	id := mux.Vars(r)["id"]
	if _, err := s.deps.Tasks.GetTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	report, err := s.deps.Switcher.SwitchTo(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
