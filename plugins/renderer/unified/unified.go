package unified

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"snaptrace/pkg/contract"
)

// Options: unified patch 输出选项。
type Options struct {
	// OrigName/NewName: 文件头名称；为空时使用 "before"/"after"（有 Title 时附加其后）。
	OrigName string `json:"orig_name"`
	NewName  string `json:"new_name"`
}

type renderer struct {
	opts Options
}

var _ contract.Renderer = (*renderer)(nil)

// New 从原样 JSON Options 创建渲染器。
func New(raw json.RawMessage) (contract.Renderer, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("unified options: %w", err)
		}
	}
	return &renderer{opts: opts}, nil
}

// Render 将差异行输出为单 hunk 的 unified patch，可被 patch/git apply 类工具读取。
// 截断时在 hunk 段名中注明省略行数。
func (r *renderer) Render(ctx context.Context, w io.Writer, v contract.DiffView) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fd := &diff.FileDiff{
		OrigName: name(r.opts.OrigName, "before", v.Title),
		NewName:  name(r.opts.NewName, "after", v.Title),
	}
	if len(v.Lines) > 0 {
		fd.Hunks = []*diff.Hunk{hunk(v)}
	}
	b, err := diff.PrintFileDiff(fd)
	if err != nil {
		return fmt.Errorf("print diff: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write diff: %w", err)
	}
	return nil
}

func name(explicit, side, title string) string {
	if explicit != "" {
		return explicit
	}
	if title != "" {
		return side + "/" + title
	}
	return side
}

func hunk(v contract.DiffView) *diff.Hunk {
	var body strings.Builder
	var orig, nw int32
	for _, l := range v.Lines {
		switch l.Kind {
		case contract.DiffAdded:
			body.WriteByte('+')
			nw++
		case contract.DiffRemoved:
			body.WriteByte('-')
			orig++
		default:
			body.WriteByte(' ')
			orig++
			nw++
		}
		body.WriteString(l.Content)
		body.WriteByte('\n')
	}
	h := &diff.Hunk{
		OrigStartLine: start(orig),
		OrigLines:     orig,
		NewStartLine:  start(nw),
		NewLines:      nw,
		Body:          []byte(body.String()),
	}
	if v.Omitted > 0 {
		h.Section = fmt.Sprintf("%d more lines", v.Omitted)
	}
	return h
}

// 空侧按 unified 约定起始行为 0
func start(n int32) int32 {
	if n == 0 {
		return 0
	}
	return 1
}
