package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

func (s *Server) handleSaveContact(w http.ResponseWriter, r *http.Request) {
	var contact models.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.deps.Chats.SaveContact(r.Context(), &contact)
	if err != nil {
		s.respondServiceError(w, "save contact", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var input models.NewChatInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := s.deps.Chats.CreateChat(r.Context(), input)
	if err != nil {
		s.respondServiceError(w, "create chat", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.chatID(w, r)
	if !ok {
		return
	}
	c, err := s.deps.Chats.GetChat(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, "get chat", err)
		return
	}
	if c == nil {
		s.respondError(w, http.StatusNotFound, "chat not found")
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.chatID(w, r)
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := s.deps.Chats.RenameChat(r.Context(), id, body.Title)
	if err != nil {
		s.respondServiceError(w, "rename chat", err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.chatID(w, r)
	if !ok {
		return
	}
	var input models.NewMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := s.deps.Chats.AppendMessage(r.Context(), id, input)
	if err != nil {
		s.respondServiceError(w, "append message", err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, msg)
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.chatID(w, r)
	if !ok {
		return
	}
	segs, err := s.deps.Store.GetSegmentsForChat(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, "list segments", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"chat_id": id, "segments": nonNil(segs)})
}

func (s *Server) handleDailySegments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.chatID(w, r)
	if !ok {
		return
	}
	segs, err := s.deps.Segments.CreateDailySegments(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, "create daily segments", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"chat_id": id, "segments": nonNil(segs)})
}

func (s *Server) handleThematicSegments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.chatID(w, r)
	if !ok {
		return
	}
	threshold := s.config.Segmentation.ThematicThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v > 1 {
			s.respondError(w, http.StatusBadRequest, "threshold must be a number <= 1")
			return
		}
		threshold = v
	}
	segs, err := s.deps.Segments.CreateThematicSegments(r.Context(), id, threshold)
	if err != nil {
		s.respondServiceError(w, "create thematic segments", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"chat_id": id, "threshold": threshold, "segments": nonNil(segs)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Search.DefaultLimit, s.config.Search.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Target == models.TargetSegments && req.Mode == models.ModeText && s.deps.Text == nil {
		s.respondError(w, http.StatusNotImplemented, "text search not enabled")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.String("target", string(req.Target)),
		zap.String("mode", string(req.Mode)), zap.Int("limit", req.Limit))

	start := time.Now()
	ctx := r.Context()
	resp := &models.SearchResponse{Query: req.Query, Mode: req.Mode, Target: req.Target}
	switch req.Target {
	case models.TargetSegments:
		switch req.Mode {
		case models.ModeVector:
			resp.Segments = s.deps.Search.FindSimilarSegments(ctx, req.Query, req.Limit)
		case models.ModeText:
			resp.Segments = s.deps.Text.SearchSegments(ctx, req.Query, req.Limit)
		default:
			resp.Segments = s.deps.Hybrid.HybridSearchSegments(ctx, req.Query, req.Limit)
		}
		resp.Total = len(resp.Segments)
	case models.TargetChats:
		if req.Mode == models.ModeVector {
			for _, c := range s.deps.Search.FindSimilarChats(ctx, req.Query, req.Limit) {
				resp.Chats = append(resp.Chats, &models.HybridSearchResult{
					Chat: c.Chat, VectorScore: c.SimilarityScore, HybridScore: c.SimilarityScore, MatchType: models.MatchVector,
				})
			}
		} else {
			resp.Chats = s.deps.Hybrid.HybridSearchChats(ctx, req.Query, req.Limit)
		}
		resp.Total = len(resp.Chats)
	case models.TargetMessages:
		resp.Messages = s.deps.Search.FindSimilarMessages(ctx, req.Query, req.Limit)
		resp.Total = len(resp.Messages)
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVectorize(w http.ResponseWriter, r *http.Request) {
	var req models.VectorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	v := s.deps.Vectorizer
	var (
		n   int
		err error
	)
	switch req.Target {
	case models.TargetChats:
		if req.Force {
			n, err = v.ReVectorizeAllChats(ctx)
		} else {
			n, err = v.VectorizeUnprocessedChats(ctx)
		}
	case models.TargetMessages:
		if req.Force {
			n, err = v.ReVectorizeAllMessages(ctx)
		} else {
			n, err = v.VectorizeUnprocessedMessages(ctx)
		}
	case models.TargetSegments, "":
		req.Target = models.TargetSegments
		if req.Force {
			n, err = v.ReVectorizeAllSegments(ctx)
		} else {
			n, err = v.VectorizeUnprocessedSegments(ctx)
		}
	default:
		s.respondError(w, http.StatusBadRequest, "unknown target: "+string(req.Target))
		return
	}
	if err != nil {
		s.logger.Error("vectorize failed", zap.String("target", string(req.Target)), zap.Int("vectorized", n), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"target": req.Target, "force": req.Force, "vectorized": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vs, err := s.deps.Vectorizer.GetVectorizationStats(ctx)
	if err != nil {
		s.respondServiceError(w, "stats", err)
		return
	}
	ss, err := s.deps.Vectorizer.GetSegmentVectorizationStats(ctx)
	if err != nil {
		s.respondServiceError(w, "segment stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"vectorization": vs, "segments": ss})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"native_vector_search": s.deps.Search.NativeSearchAvailable(),
		"text_search":          s.deps.Text != nil,
	}
	if counter, ok := s.deps.Store.(storage.Counter); ok {
		counts, err := counter.Counts(r.Context())
		if err != nil {
			s.logger.Error("status: counts failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["counts"] = counts
	}
	if s.deps.Model != nil {
		resp["embedding"] = map[string]interface{}{
			"model":      s.deps.Model.ModelName(),
			"dimensions": s.deps.Model.Dimensions(),
			"available":  s.deps.Model.Available(),
		}
		if cs, ok := s.deps.Model.(cacheStatser); ok {
			if stats, on := cs.CacheStats(); on {
				resp["embedding_cache"] = map[string]interface{}{
					"entries":  stats.Entries,
					"capacity": stats.Capacity,
					"hits":     stats.Hits,
					"misses":   stats.Misses,
					"hit_rate": stats.HitRate(),
				}
			}
		}
	}
	if s.deps.Tasks != nil {
		resp["pending_tasks"] = s.deps.Tasks.Pending()
	}

	cfg := s.config.Storage
	configInfo := map[string]interface{}{
		"driver":            cfg.Driver,
		"vector_index_type": cfg.VectorIndexType,
	}
	components := map[string][]string{"bleve": {cfg.BleveIndexPath}}
	if cfg.Driver == config.DriverSQLite {
		configInfo["database_path"] = cfg.DatabasePath
		components["database"] = storage.SQLiteFiles(cfg.DatabasePath)
	}
	if s.config.Embedding.PersistentCachePath != "" {
		components["embedding_cache"] = []string{s.config.Embedding.PersistentCachePath}
	}
	if usage, total, err := storage.MeasureComponents(components); err == nil {
		resp["disk_usage"] = usage
		resp["disk_usage_bytes"] = total
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) chatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return id, true
}

// respondServiceError maps service errors to status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
