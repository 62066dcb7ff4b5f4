package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/insight-discovery/internal/bulk"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

type exportResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Directory string `json:"directory,omitempty"`
}

type prefetchResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Stats   bulk.Stats `json:"stats"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body createTaskRequest
	if err := decodeAndValidate(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := body.toCreateRequest()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.tasks.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []discovery.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	detail, err := s.tasks.Get(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	if err := s.tasks.Cancel(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "message": "Task cancelled"})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "message": "Task deleted"})
}

func (s *Server) exportTask(w http.ResponseWriter, r *http.Request) {
	var body exportRequest
	if err := decodeAndValidate(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.exporter.Export(r.Context(), bulk.ExportRequest{
		TaskID:    chi.URLParam(r, "task_id"),
		TargetDir: body.TargetDir,
		Format:    bulk.Format(body.Format),
		Gateways:  bulk.NewGateways(body.Proxies, body.Authorization),
	})
	if errors.Is(err, discovery.ErrNothingToExport) {
		writeJSON(w, http.StatusOK, exportResponse{Message: "No articles to export"})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Success:   true,
		Message:   fmt.Sprintf("Export completed to %s (%d exported, %d failed)", res.Directory, res.Exported, res.Failed),
		Directory: res.Directory,
	})
}

func (s *Server) prefetchTask(w http.ResponseWriter, r *http.Request) {
	var body prefetchRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	stats, err := s.prefetcher.Prefetch(r.Context(), bulk.PrefetchRequest{
		TaskID:   chi.URLParam(r, "task_id"),
		Gateways: bulk.NewGateways(body.Proxies, body.Authorization),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefetchResponse{Success: true, Message: "Prefetch completed.", Stats: stats})
}
