package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"snaptrace/pkg/contract"
)

// Options: 终端渲染选项。
type Options struct {
	// Color: auto|always|never；auto 依据输出端是否为终端。
	Color string `json:"color"`
	// LineNumbers: 显示行号栏（仅逐行比较模式有行号）。
	LineNumbers bool `json:"line_numbers"`
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
			return nil, fmt.Errorf("terminal options: %w", err)
		}
	}
	switch opts.Color {
	case "", "auto", "always", "never":
	default:
		return nil, fmt.Errorf("terminal options: unknown color mode %q: %w", opts.Color, contract.ErrInvalidInput)
	}
	return &renderer{opts: opts}, nil
}

type styles struct {
	title, added, removed, unchanged, gutter, more lipgloss.Style
}

func (r *renderer) styles(w io.Writer) styles {
	lr := lipgloss.NewRenderer(w)
	switch r.opts.Color {
	case "always":
		lr.SetColorProfile(termenv.ANSI256)
	case "never":
		lr.SetColorProfile(termenv.Ascii)
	}
	return styles{
		title:     lr.NewStyle().Bold(true),
		added:     lr.NewStyle().Foreground(lipgloss.Color("42")),
		removed:   lr.NewStyle().Foreground(lipgloss.Color("196")),
		unchanged: lr.NewStyle().Foreground(lipgloss.Color("250")),
		gutter:    lr.NewStyle().Foreground(lipgloss.Color("241")),
		more:      lr.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
	}
}

// Render 输出着色差异：标题行 "Diff (N changes)"，逐行 +/-/空格 前缀，截断时追加 "... N more lines"。
func (r *renderer) Render(ctx context.Context, w io.Writer, v contract.DiffView) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	st := r.styles(w)
	var b strings.Builder
	head := fmt.Sprintf("Diff (%d changes)", v.Changes)
	if v.Title != "" {
		head = v.Title + "  " + head
	}
	b.WriteString(st.title.Render(head))
	b.WriteByte('\n')

	width := 0
	if r.opts.LineNumbers {
		for _, l := range v.Lines {
			if n := len(fmt.Sprint(l.LineNumber)); l.LineNumber > 0 && n > width {
				width = n
			}
		}
	}
	for _, l := range v.Lines {
		if width > 0 {
			num := ""
			if l.LineNumber > 0 {
				num = fmt.Sprint(l.LineNumber)
			}
			b.WriteString(st.gutter.Render(fmt.Sprintf("%*s ", width, num)))
		}
		switch l.Kind {
		case contract.DiffAdded:
			b.WriteString(st.added.Render("+ " + l.Content))
		case contract.DiffRemoved:
			b.WriteString(st.removed.Render("- " + l.Content))
		default:
			b.WriteString(st.unchanged.Render("  " + l.Content))
		}
		b.WriteByte('\n')
	}
	if v.Omitted > 0 {
		b.WriteString(st.more.Render(fmt.Sprintf("... %d more lines", v.Omitted)))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
