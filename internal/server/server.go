// Package server 提供单个日志源的只读 HTTP 查询接口：
// 原始记录、时间线摘要、任意位置的状态/变更/来源/差异，以及 /metrics。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"snaptrace/internal/diag"
	"snaptrace/internal/pipeline"
	"snaptrace/pkg/contract"
	"snaptrace/pkg/structdiff"
	"snaptrace/pkg/timeline"
	rfs "snaptrace/plugins/reader/filesystem"
)

// Options 服务配置。
type Options struct {
	// Path 为被查询的日志文件。
	Path string
	// MaxLines: diff 默认截断行数（<=0 不截断）；请求可用 max_lines 覆盖。
	MaxLines int
	// Remove 删除日志文件；为空时使用文件系统实现。
	Remove func(ctx context.Context, p string) error
}

// snapshot: 一次加载的结果；整体替换，读取方无锁。
type snapshot struct {
	res      pipeline.FileResult
	loadedAt time.Time
}

// Server 持有当前时间线并提供 HTTP 路由。
type Server struct {
	opts   Options
	comp   pipeline.Components
	set    pipeline.Settings
	logger *diag.Logger
	differ *structdiff.Differ
	cur    atomic.Pointer[snapshot]
}

// New 创建服务；首次 Reload 前时间线为空。
func New(opts Options, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) *Server {
	if opts.Remove == nil {
		opts.Remove = rfs.Remove
	}
	s := &Server{opts: opts, comp: comp, set: set, logger: logger, differ: structdiff.New(structdiff.Options{})}
	s.cur.Store(&snapshot{res: s.empty()})
	return s
}

// Reload 从磁盘重新回放日志文件并替换当前时间线。
// 文件不存在视为空日志。
func (s *Server) Reload(ctx context.Context) error {
	res, err := pipeline.Load(ctx, s.comp, s.set, s.logger, s.opts.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		res = s.empty()
	}
	s.cur.Store(&snapshot{res: res, loadedAt: time.Now()})
	return nil
}

// Timeline 返回当前时间线（可能为空）。
func (s *Server) Timeline() *timeline.Timeline { return s.cur.Load().res.Timeline }

// Handler 返回挂载全部路由的处理器。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Route("/api", func(r chi.Router) {
		r.Get("/logs", s.handleLogs)
		r.Delete("/logs", s.handleClear)
		r.Get("/timeline", s.handleTimeline)
		r.Route("/timeline/{pos}", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Get("/changes", s.handleChanges)
			r.Get("/origin", s.handleOrigin)
			r.Get("/diff", s.handleDiff)
		})
	})
	r.Handle("/metrics", diag.MetricsHandler())
	return r
}

// ListenAndServe 监听 addr，ctx 取消时优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shut); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

// observe: 每个请求一条 start/finish 日志，附带请求ID。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		t := s.logger.StartWithKV("http", r.Method+" "+r.URL.Path, "", "", map[string]string{"req_id": reqID})
		next.ServeHTTP(ww, r)
		result := "success"
		if ww.Status() >= 500 {
			result = "error"
		}
		diag.IncOp("http", r.Method, result)
		t.Finish(strconv.Itoa(ww.Status()), int64(ww.BytesWritten()))
	})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 按分类映射 HTTP 状态码。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := diag.Classify(err)
	status := http.StatusInternalServerError
	switch code {
	case diag.CodeRange:
		status = http.StatusNotFound
	case diag.CodeInvariant:
		status = http.StatusBadRequest
	case diag.CodeCancel:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.logger.ErrorWithKV("http", string(code), err.Error(), nil, string(s.cur.Load().res.FileID), "", map[string]string{"route": r.URL.Path})
		diag.IncError("http", string(code))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(code)})
}

// position 解析 {pos} 并校验范围。
func (s *Server) position(r *http.Request) (*timeline.Timeline, int, error) {
	raw := chi.URLParam(r, "pos")
	pos, err := strconv.Atoi(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("position %q: %w", raw, contract.ErrInvalidInput)
	}
	tl := s.Timeline()
	if pos < 0 || pos >= tl.Len() {
		return nil, 0, fmt.Errorf("position %d of %d: %w", pos, tl.Len(), contract.ErrOutOfRange)
	}
	return tl, pos, nil
}
