// Package http serves the kvproxy operations over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kng-mtd/kvproxy"
	"github.com/kng-mtd/kvproxy/archive"
)

const defaultMaxBodyBytes = 8 << 20

// HandlerConfig wires a Handler. Proxy and Secret are required.
type HandlerConfig struct {
	Proxy  kvproxy.Proxy
	Secret string

	Logger       kvproxy.Logger      // nil => NopLogger
	MaxBodyBytes int64               // request body cap; 0 => 8 MiB
	Gatherer     prometheus.Gatherer // serves /metrics when set
	Metrics      *RequestMetrics     // request metrics; nil => none
}

// Handler routes /kv requests to a kvproxy.Proxy.
type Handler struct {
	chi.Router

	proxy        kvproxy.Proxy
	log          kvproxy.Logger
	errh         ErrorHandler
	maxBodyBytes int64
}

const healthPath = "/health"

// NewHandler builds the router. Requests pass CORS, then request id,
// metrics and authentication, in that order.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Proxy == nil {
		return nil, errors.New("http: proxy is required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("http: secret is required")
	}
	if cfg.MaxBodyBytes < 0 {
		return nil, errors.New("http: max body bytes must not be negative")
	}

	log := cfg.Logger
	if log == nil {
		log = kvproxy.NopLogger{}
	}
	h := &Handler{
		Router:       chi.NewRouter(),
		proxy:        cfg.Proxy,
		log:          log,
		errh:         ErrorHandler{Log: log},
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if h.maxBodyBytes == 0 {
		h.maxBodyBytes = defaultMaxBodyBytes
	}

	h.Use(SetCORS, RequestID(log))
	if cfg.Metrics != nil {
		h.Use(Metrics("kvproxy", cfg.Metrics))
	}
	h.Use(Authenticate(cfg.Secret, h.errh, healthPath))

	h.NotFound(h.handleNotFound)
	h.MethodNotAllowed(h.handleMethodNotAllowed)

	h.Get(healthPath, h.handleHealth)
	if cfg.Gatherer != nil {
		h.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h.Route("/kv", func(r chi.Router) {
		r.Post("/set", h.handleSet)
		r.Get("/get/{tenant}/{key}", h.handleGet)
		r.Delete("/delete/{tenant}/{key}", h.handleDelete)
		r.Get("/list/{tenant}", h.handleList)
		r.Post("/bulk-set", h.handleBulkSet)
		r.Put("/update", h.handleUpdate)
		r.Get("/backup", h.handleBackup)
		r.Post("/restore", h.handleRestore)
	})
	return h, nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.encodeResponse(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{Code: kvproxy.ENotFound, Msg: "route not found"}, w)
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{Code: kvproxy.EMethodNotAllowed, Msg: r.Method + " is not allowed on " + r.URL.Path}, w)
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	var it kvproxy.Item
	if err := h.decodeJSON(w, r, &it); err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	if err := h.proxy.Set(r.Context(), it); err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	h.encodeResponse(w, r, http.StatusOK, successResponse{Success: true})
}

// handleGet writes the stored JSON text as is.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, key, err := tenantKeyParams(r)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	v, err := h.proxy.Get(r.Context(), tenant, key)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	tenant, key, err := tenantKeyParams(r)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	if err := h.proxy.Delete(r.Context(), tenant, key); err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	h.encodeResponse(w, r, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenant, err := pathParam(r, "tenant")
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	keys, err := h.proxy.List(r.Context(), tenant)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	h.encodeResponse(w, r, http.StatusOK, keys)
}

// pathParam returns the decoded route parameter. chi matches on RawPath when
// the request carries one, so segments like a%40b or a%2Fb arrive escaped.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	v, err := url.PathUnescape(v)
	if err != nil {
		return "", &kvproxy.Error{Code: kvproxy.EInvalid, Msg: "malformed " + name + " in path", Err: err}
	}
	return v, nil
}

func tenantKeyParams(r *http.Request) (tenant, key string, err error) {
	if tenant, err = pathParam(r, "tenant"); err != nil {
		return "", "", err
	}
	if key, err = pathParam(r, "key"); err != nil {
		return "", "", err
	}
	return tenant, key, nil
}

type bulkSetRequest struct {
	Items []kvproxy.Item `json:"items"`
}

func (h *Handler) handleBulkSet(w http.ResponseWriter, r *http.Request) {
	var req bulkSetRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	if req.Items == nil {
		h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{Code: kvproxy.EInvalid, Msg: "items must be an array"}, w)
		return
	}
	res, err := h.proxy.BulkSet(r.Context(), req.Items)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	h.encodeResponse(w, r, http.StatusOK, res)
}

// updateRequest names the value newValue; app is the older name of tenant.
type updateRequest struct {
	Tenant   string          `json:"tenant"`
	App      string          `json:"app"`
	Key      string          `json:"key"`
	NewValue json.RawMessage `json:"newValue"`
	TTL      int64           `json:"ttl"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	it := kvproxy.Item{Tenant: req.Tenant, Key: req.Key, Value: req.NewValue, TTL: req.TTL}
	if it.Tenant == "" {
		it.Tenant = req.App
	}
	if err := h.proxy.Update(r.Context(), it); err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	h.encodeResponse(w, r, http.StatusOK, successResponse{Success: true})
}

// handleBackup encodes the snapshot in the first Accept type we support.
func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	f, ok := archive.Negotiate(r.Header.Get("Accept"))
	if !ok {
		h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{
			Code: kvproxy.EInvalid,
			Msg:  "unsupported Accept type: " + r.Header.Get("Accept"),
		}, w)
		return
	}

	pairs, err := h.proxy.Backup(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	b, err := f.Encode(pairs)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{Code: kvproxy.EInternal, Op: "http.Backup", Err: err}, w)
		return
	}
	w.Header().Set("Content-Type", f.MediaType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// handleRestore reads an archive in the format named by Content-Type.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	f, ok := archive.ForMediaType(r.Header.Get("Content-Type"))
	if !ok {
		h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{
			Code: kvproxy.EInvalid,
			Msg:  "unsupported Content-Type: " + r.Header.Get("Content-Type"),
		}, w)
		return
	}
	b, err := h.readBody(w, r)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	pairs, err := f.Decode(b)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{Code: kvproxy.EInvalid, Msg: "invalid backup data: " + err.Error()}, w)
		return
	}
	res, err := h.proxy.Restore(r.Context(), pairs)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), err, w)
		return
	}
	h.encodeResponse(w, r, http.StatusOK, res)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &kvproxy.Error{Code: kvproxy.ETooLarge, Msg: "request body is too large"}
		}
		return nil, &kvproxy.Error{Code: kvproxy.EInvalid, Msg: "could not read request body", Err: err}
	}
	return b, nil
}

// decodeJSON reads one JSON document into v. Trailing data is an error.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	b, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return &kvproxy.Error{Code: kvproxy.EInvalid, Msg: "request body is required"}
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &kvproxy.Error{Code: kvproxy.EInvalid, Msg: "malformed JSON body: " + err.Error()}
	}
	return nil
}

func (h *Handler) encodeResponse(w http.ResponseWriter, r *http.Request, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.errh.HandleHTTPError(r.Context(), &kvproxy.Error{Code: kvproxy.EInternal, Err: err}, w)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}
