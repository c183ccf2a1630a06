package lines

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"snaptrace/pkg/contract"
)

// Options 为行拆分器的可选配置（最小必要）。
type Options struct {
	// MaxLineBytes: 单行最大字节数。0 表示不限制。
	MaxLineBytes int `json:"max_line_bytes"`
	// AllowExts: 允许处理的文件扩展名（大小写不敏感，包含点，如 [".log"]）。
	// 为空表示不限制。
	AllowExts []string `json:"allow_exts"`
}

// Splitter 实现按行拆分（NDJSON 变更日志）。
type Splitter struct {
	maxBytes int
	// 允许扩展名（小写），若为 nil 表示不限制。
	allow map[string]struct{}
}

// New 创建行拆分器。
func New(opts *Options) *Splitter {
	mb := 0
	if opts != nil && opts.MaxLineBytes > 0 {
		mb = opts.MaxLineBytes
	}
	var allow map[string]struct{}
	if opts != nil && len(opts.AllowExts) > 0 {
		allow = make(map[string]struct{}, len(opts.AllowExts))
		for _, e := range opts.AllowExts {
			if e == "" {
				continue
			}
			allow[strings.ToLower(e)] = struct{}{}
		}
	}
	return &Splitter{maxBytes: mb, allow: allow}
}

var _ contract.Splitter = (*Splitter)(nil)

// 相邻记录粘连（"}" 与 "{" 之间只有空白）
var gluedRe = regexp.MustCompile(`}\s*{`)

// Split 将单个日志源拆分为 []Record。
// 空白行丢弃且不占 Index；坏行只影响自身：非法 UTF-8 字节替换为 U+FFFD，
// 超长行保留位置并以 Reject 标记，交由解码器计入诊断。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Record, error) {
	if s.allow != nil {
		ext := strings.ToLower(path.Ext(string(fileID)))
		if _, ok := s.allow[ext]; !ok {
			return nil, nil
		}
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	text := Normalize(string(b))

	var recs []contract.Record
	var idx contract.Index
	for _, line := range strings.Split(text, "\n") {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec := contract.Record{Index: idx, FileID: fileID}
		switch {
		case s.maxBytes > 0 && len(line) > s.maxBytes:
			rec.Reject = fmt.Sprintf("line too large: %d > %d", len(line), s.maxBytes)
		case !utf8.ValidString(line):
			rec.Text = strings.ToValidUTF8(line, "\uFFFD")
		default:
			rec.Text = line
		}
		recs = append(recs, rec)
		idx++
	}
	return recs, nil
}

// Normalize 统一换行（CRLF/CR→LF）并在粘连记录之间补换行，结果已去首尾空白。
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = gluedRe.ReplaceAllString(text, "}\n{")
	return strings.TrimSpace(text)
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
