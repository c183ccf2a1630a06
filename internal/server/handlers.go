package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"snaptrace/internal/pipeline"
	"snaptrace/pkg/contract"
	"snaptrace/pkg/structdiff"
	"snaptrace/pkg/timeline"
)

type logsBody struct {
	Entries     []contract.ChangeRecord `json:"entries"`
	Skipped     int                     `json:"skipped"`
	Diagnostics []diagnosticBody        `json:"diagnostics,omitempty"`
}

type diagnosticBody struct {
	Index contract.Index `json:"index"`
	Error string         `json:"error"`
}

// GET /api/logs：重新加载并返回解码成功的记录（输入顺序）。
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	res := s.cur.Load().res
	body := logsBody{Entries: []contract.ChangeRecord{}, Skipped: len(res.Diagnostics)}
	for _, e := range res.Timeline.Entries() {
		body.Entries = append(body.Entries, *e.Record)
	}
	for _, d := range res.Diagnostics {
		body.Diagnostics = append(body.Diagnostics, diagnosticBody{Index: d.Index, Error: d.Err.Error()})
	}
	writeJSON(w, http.StatusOK, body)
}

// DELETE /api/logs：删除日志文件并清空时间线。
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Remove(r.Context(), s.opts.Path); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cur.Store(&snapshot{res: s.empty()})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type entrySummary struct {
	Position  int      `json:"position"`
	Timestamp int64    `json:"timestamp"`
	Label     string   `json:"label"`
	Subject   string   `json:"subject"`
	Action    string   `json:"action"`
	Changed   []string `json:"changed"`
	Total     int      `json:"total"`
}

type timelineBody struct {
	FileID  contract.FileID `json:"fileId"`
	Entries []entrySummary  `json:"entries"`
	Skipped int             `json:"skipped"`
}

// GET /api/timeline：条目摘要（位置、标签、变更字段数/总字段数）。
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	res := s.cur.Load().res
	body := timelineBody{FileID: res.FileID, Entries: []entrySummary{}, Skipped: len(res.Diagnostics)}
	for _, e := range res.Timeline.Entries() {
		body.Entries = append(body.Entries, entrySummary{
			Position:  e.Position,
			Timestamp: e.Timestamp,
			Label:     e.Record.Label(),
			Subject:   e.Record.Subject,
			Action:    e.Record.Action,
			Changed:   e.Record.Changes.Fields(),
			Total:     e.TotalCount(),
		})
	}
	writeJSON(w, http.StatusOK, body)
}

// GET /api/timeline/{pos}/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	tl, pos, err := s.position(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline.StateAt(tl, pos))
}

// GET /api/timeline/{pos}/changes
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	tl, pos, err := s.position(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline.ChangesAt(tl, pos))
}

type originBody struct {
	Path          string                `json:"path"`
	EntryPosition int                   `json:"entryPosition"`
	Label         string                `json:"label"`
	Timestamp     int64                 `json:"timestamp"`
	Backtrace     []contract.StackFrame `json:"backtrace"`
}

// GET /api/timeline/{pos}/origin?path=
func (s *Server) handleOrigin(w http.ResponseWriter, r *http.Request) {
	tl, pos, err := s.position(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		s.writeError(w, r, fmt.Errorf("missing path: %w", contract.ErrInvalidInput))
		return
	}
	o, ok := timeline.OriginOf(tl, pos, p)
	if !ok {
		s.writeError(w, r, fmt.Errorf("no origin for %q at %d: %w", p, pos, contract.ErrOutOfRange))
		return
	}
	e, _ := tl.Entry(o.EntryPosition)
	bt := o.Record.Backtrace
	if bt == nil {
		bt = []contract.StackFrame{}
	}
	writeJSON(w, http.StatusOK, originBody{
		Path:          o.Path,
		EntryPosition: o.EntryPosition,
		Label:         o.Record.Label(),
		Timestamp:     e.Timestamp,
		Backtrace:     bt,
	})
}

type diffBody struct {
	Title   string            `json:"title"`
	Field   string            `json:"field"`
	Before  contract.Value    `json:"before"`
	After   contract.Value    `json:"after"`
	Lines   []structdiff.Line `json:"lines"`
	Total   int               `json:"total"`
	Omitted int               `json:"omitted"`
	Changes int               `json:"changes"`
}

// GET /api/timeline/{pos}/diff?field=&max_lines=&format=json|text
// format=text 时交由配置的渲染器输出纯文本。
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	tl, pos, err := s.position(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		s.writeError(w, r, fmt.Errorf("missing field: %w", contract.ErrInvalidInput))
		return
	}
	fc, ok := timeline.ChangesAt(tl, pos).Get(field)
	if !ok {
		s.writeError(w, r, fmt.Errorf("field %q not changed at %d: %w", field, pos, contract.ErrOutOfRange))
		return
	}
	maxLines := s.opts.MaxLines
	if raw := q.Get("max_lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("max_lines %q: %w", raw, contract.ErrInvalidInput))
			return
		}
		maxLines = n
	}
	res := s.differ.Diff(fc.Before, fc.After, maxLines)
	title := fmt.Sprintf("%s @ %d", field, pos)

	switch q.Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, diffBody{
			Title: title, Field: field, Before: fc.Before, After: fc.After,
			Lines: res.Lines, Total: res.Total, Omitted: res.Omitted, Changes: res.Changes,
		})
	case "text":
		if s.comp.Renderer == nil {
			s.writeError(w, r, fmt.Errorf("no renderer configured: %w", contract.ErrInvalidInput))
			return
		}
		var buf bytes.Buffer
		if err := s.comp.Renderer.Render(r.Context(), &buf, structdiff.View(title, fc.Before, fc.After, res)); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	default:
		s.writeError(w, r, fmt.Errorf("format %q: %w", q.Get("format"), contract.ErrInvalidInput))
	}
}

func (s *Server) empty() pipeline.FileResult {
	return pipeline.FileResult{FileID: contract.NormalizeFileID(s.opts.Path)}
}
