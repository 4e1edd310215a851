package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/erevna/internal/pipeline"
	"github.com/mtzanidakis/erevna/internal/scheduler"
	"github.com/mtzanidakis/erevna/internal/store"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Research runs
	mux.HandleFunc("POST /api/research", s.startResearch)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)

	// Sources
	mux.HandleFunc("GET /api/sources", s.searchSources)
	mux.HandleFunc("POST /api/sources", s.addSources)
	mux.HandleFunc("POST /api/sources/duplicates", s.findDuplicates)
	mux.HandleFunc("GET /api/sources/{id}", s.getSource)
	mux.HandleFunc("PATCH /api/sources/{id}", s.updateSource)
	mux.HandleFunc("DELETE /api/sources/{id}", s.deleteSource)

	// Collections
	mux.HandleFunc("GET /api/collections", s.listCollections)
	mux.HandleFunc("POST /api/collections", s.createCollection)
	mux.HandleFunc("GET /api/collections/{id}", s.getCollection)
	mux.HandleFunc("DELETE /api/collections/{id}", s.deleteCollection)
	mux.HandleFunc("GET /api/collections/{id}/sources", s.collectionSources)
	mux.HandleFunc("POST /api/collections/{id}/sources", s.addToCollection)

	// Scheduled topics
	mux.HandleFunc("GET /api/schedules", s.listSchedules)
	mux.HandleFunc("POST /api/schedules", s.createSchedule)
	mux.HandleFunc("GET /api/schedules/{id}", s.getSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.deleteSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/pause", s.pauseSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/resume", s.resumeSchedule)

	// System
	mux.HandleFunc("GET /api/statistics", s.getStatistics)
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		pipeline.Request
		Async bool `json:"async"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !body.Async {
		report, err := s.coord.Run(r.Context(), body.Request)
		if err != nil {
			jsonErrorFor(w, err)
			return
		}
		jsonResponse(w, report)
		return
	}

	body.Request.RunID = uuid.New().String()
	go func() {
		// Detached from the HTTP request; the run outlives the response.
		if _, err := s.coord.Run(context.Background(), body.Request); err != nil {
			slog.Error("async run failed", "run_id", body.Request.RunID, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"run_id": body.Request.RunID, "status": "accepted"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListResearchRuns(limit)
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	if runs == nil {
		runs = []store.ResearchRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetResearchRun(r.PathValue("id"))
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) searchSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := store.SearchCriteria{
		URL:      q.Get("url"),
		Domain:   q.Get("domain"),
		Title:    q.Get("title"),
		Content:  q.Get("content"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	}
	if tags, ok := q["tag"]; ok {
		criteria.Tags = tags
	}
	if v := q.Get("min_credibility"); v != "" {
		criteria.MinCredibility, _ = strconv.ParseFloat(v, 64)
	}
	criteria.Limit, _ = strconv.Atoi(q.Get("limit"))
	criteria.Offset, _ = strconv.Atoi(q.Get("offset"))

	sources, err := s.store.SearchSources(criteria)
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	if sources == nil {
		sources = []store.Source{}
	}
	jsonResponse(w, sources)
}

func (s *Server) addSources(w http.ResponseWriter, r *http.Request) {
	var candidates []store.Source
	if err := json.NewDecoder(r.Body).Decode(&candidates); err != nil {
		jsonError(w, "invalid request body: want an array of sources", http.StatusBadRequest)
		return
	}

	result, err := s.store.AddSources(candidates)
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, result)
}

func (s *Server) findDuplicates(w http.ResponseWriter, r *http.Request) {
	var candidates []store.Source
	if err := json.NewDecoder(r.Body).Decode(&candidates); err != nil {
		jsonError(w, "invalid request body: want an array of sources", http.StatusBadRequest)
		return
	}

	report, err := s.store.FindDuplicates(candidates)
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, report)
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.store.GetSource(r.PathValue("id"))
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, src)
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := s.store.UpdateSource(r.PathValue("id"), fields)
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, map[string]any{"updated": updated})
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSource(r.PathValue("id")); err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.store.ListCollections()
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	if cols == nil {
		cols = []store.Collection{}
	}
	jsonResponse(w, cols)
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		SourceIDs   []string       `json:"source_ids"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	col, err := s.store.CreateCollection(body.Name, body.Description, body.SourceIDs, body.Metadata)
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, col)
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.store.GetCollection(r.PathValue("id"))
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, col)
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCollection(r.PathValue("id")); err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) collectionSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.CollectionSources(r.PathValue("id"))
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, sources)
}

func (s *Server) addToCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourceIDs []string `json:"source_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	col, err := s.store.AddToCollection(r.PathValue("id"), body.SourceIDs)
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, col)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	topics, err := s.store.ListScheduledTopics()
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	if topics == nil {
		topics = []store.ScheduledTopic{}
	}
	jsonResponse(w, topics)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var topic store.ScheduledTopic
	if err := json.NewDecoder(r.Body).Decode(&topic); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if topic.NextRunAt == nil {
		topic.NextRunAt = scheduler.CalculateNextRun(topic.Schedule)
	}
	if topic.NextRunAt == nil {
		jsonError(w, "schedule expression yields no next run", http.StatusBadRequest)
		return
	}

	if err := s.store.CreateScheduledTopic(&topic); err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, topic)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	topic, err := s.store.GetScheduledTopic(r.PathValue("id"))
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, topic)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteScheduledTopic(r.PathValue("id")); err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) pauseSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SetScheduledTopicStatus(r.PathValue("id"), "paused"); err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, map[string]string{"status": "paused"})
}

func (s *Server) resumeSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SetScheduledTopicStatus(r.PathValue("id"), "active"); err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, map[string]string{"status": "active"})
}

func (s *Server) getStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics()
	if err != nil {
		jsonErrorFor(w, err)
		return
	}
	jsonResponse(w, stats)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"version":   s.version,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"nats_port": 0,
	}
	if s.bus != nil {
		status["nats_port"] = s.bus.Port()
	}
	jsonResponse(w, status)
}
