// Package api exposes object metadata over HTTP. Every request works on a
// fresh object handle, stages one change and saves it before responding.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/model"
	"github.com/wp-orm/wpmeta/internal/orm/result"
	"github.com/wp-orm/wpmeta/internal/store/instrument"
)

// Server serves the metadata API
type Server struct {
	store    meta.Store
	logger   *zap.Logger
	metrics  *instrument.Metrics
	gatherer prometheus.Gatherer
}

// NewServer creates a server. metrics and gatherer may be nil, in which case
// requests are not counted and /metrics is not mounted.
func NewServer(store meta.Store, logger *zap.Logger, metrics *instrument.Metrics, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, logger: logger, metrics: metrics, gatherer: gatherer}
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(observe(s.logger, s.metrics))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/objects/{type}/{id}/meta", func(r chi.Router) {
		r.Get("/", s.listMeta)
		r.Get("/{key}", s.getMeta)
		r.Post("/{key}", s.writeMeta(createMeta))
		r.Put("/{key}", s.writeMeta(updateMeta))
		r.Patch("/{key}", s.writeMeta(replaceMeta))
		r.Delete("/{key}", s.deleteMeta)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// object resolves the {type} and {id} URL parameters
func (s *Server) object(w http.ResponseWriter, r *http.Request) (*model.Object, bool) {
	objectType, err := meta.ParseObjectType(chi.URLParam(r, "type"))
	if err != nil {
		renderError(w, http.StatusBadRequest, "invalid_object_type", err)
		return nil, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		renderError(w, http.StatusBadRequest, "invalid_object_id",
			fmt.Errorf("object id must be a positive integer, got %q", chi.URLParam(r, "id")))
		return nil, false
	}
	return model.ObjectByID(objectType, id, s.store, s.logger), true
}

func (s *Server) listMeta(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}
	if err := obj.Preload(r.Context()); err != nil {
		s.storeError(w, err)
		return
	}

	resp := ObjectResponse{
		ObjectType: string(obj.Type),
		ObjectID:   obj.ID,
		Keys:       obj.Keys(),
		Meta:       make(map[string][]interface{}),
	}
	for _, key := range resp.Keys {
		entries, err := obj.GetMetas(r.Context(), key)
		if err != nil {
			s.storeError(w, err)
			return
		}
		resp.Meta[key] = metaValues(entries)
	}
	renderJSON(w, http.StatusOK, resp)
}

func (s *Server) getMeta(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	entries, err := obj.GetMetas(r.Context(), key)
	if err != nil {
		s.storeError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, MetaResponse{
		ObjectType: string(obj.Type),
		ObjectID:   obj.ID,
		Key:        key,
		Values:     metaValues(entries),
	})
}

type writeFunc func(r *http.Request, obj *model.Object, key string, value interface{}) result.Result

func createMeta(r *http.Request, obj *model.Object, key string, value interface{}) result.Result {
	return obj.CreateMeta(key, value)
}

func updateMeta(r *http.Request, obj *model.Object, key string, value interface{}) result.Result {
	return obj.UpdateMeta(r.Context(), key, value)
}

func replaceMeta(r *http.Request, obj *model.Object, key string, value interface{}) result.Result {
	return obj.ReplaceMeta(r.Context(), key, value)
}

type writeRequest struct {
	Value interface{} `json:"value"`
}

func (s *Server) writeMeta(stage writeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, ok := s.object(w, r)
		if !ok {
			return
		}

		var req writeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, http.StatusBadRequest, "invalid_body", fmt.Errorf("invalid request body: %w", err))
			return
		}

		s.save(w, r, obj, stage(r, obj, chi.URLParam(r, "key"), req.Value))
	}
}

// deleteMeta removes every value of the key, or only the one given by ?value=
func (s *Server) deleteMeta(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}

	var value interface{}
	if r.URL.Query().Has("value") {
		value = r.URL.Query().Get("value")
	}

	s.save(w, r, obj, obj.DeleteMeta(r.Context(), chi.URLParam(r, "key"), value))
}

// save flushes the object unless staging already failed
func (s *Server) save(w http.ResponseWriter, r *http.Request, obj *model.Object, staged result.Result) {
	resp := WriteResponse{Staged: toResultResponse(staged), Results: []ResultResponse{}}
	if staged.IsError() {
		renderJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	results := obj.Save(r.Context())
	for _, res := range results {
		resp.Results = append(resp.Results, toResultResponse(res))
	}
	if err := results.Err(); err != nil {
		s.logger.Warn("meta save incomplete",
			zap.String("object_type", string(obj.Type)),
			zap.Int64("object_id", obj.ID),
			zap.Error(err),
		)
	}
	renderJSON(w, statusFor(results), resp)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, meta.ErrInvalidKey) {
		renderError(w, http.StatusBadRequest, "invalid_key", err)
		return
	}
	s.logger.Error("meta read failed", zap.Error(err))
	renderError(w, http.StatusInternalServerError, "store_error", errors.New("failed to read metadata"))
}

func metaValues(entries []*meta.Meta) []interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value())
	}
	return out
}
