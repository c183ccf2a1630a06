package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"snaptrace/pkg/contract"
)

// Options: 导出格式选项。
type Options struct {
	// Pretty: 每个条目缩进输出（条目之间仍以换行分隔，不再是严格的单行 JSONL）。
	Pretty bool `json:"pretty"`
	// OmitOrigins: 不输出来源索引。
	OmitOrigins bool `json:"omit_origins"`
}

type assembler struct {
	opts Options
}

var _ contract.Assembler = (*assembler)(nil)

// New 从原样 JSON Options 创建装配器（严格解析）。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("jsonl options: %w", err)
		}
	}
	return &assembler{opts: opts}, nil
}

// Assemble 将条目按 Position 升序逐行输出：
// {"position","timestamp","subject","action","changed":[…],"state":{…},"origins":{path:position}}
// Position 必须自首条起连续递增，否则返回 ErrInvariantViolation。
func (a *assembler) Assemble(ctx context.Context, fileID contract.FileID, entries []contract.TimelineEntry) (io.Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 && e.Position != entries[i-1].Position+1 {
			return nil, fmt.Errorf("%s: position %d after %d: %w", fileID, e.Position, entries[i-1].Position, contract.ErrInvariantViolation)
		}
		line, err := a.line(e)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", fileID, e.Position, err)
		}
		if a.opts.Pretty {
			line = pretty.PrettyOptions(line, &pretty.Options{Width: 120, Indent: "  "})
			line = bytes.TrimRight(line, "\n")
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return &buf, nil
}

func (a *assembler) line(e contract.TimelineEntry) ([]byte, error) {
	var (
		subject, action string
		changed         = []string{}
	)
	if e.Record != nil {
		subject, action = e.Record.Subject, e.Record.Action
		changed = e.Record.Changes.Fields()
	}
	out := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, v)
		}
	}
	setRaw := func(path string, raw []byte) {
		if err == nil {
			out, err = sjson.SetRawBytes(out, path, raw)
		}
	}
	set("position", e.Position)
	set("timestamp", e.Timestamp)
	set("subject", subject)
	set("action", action)
	set("changed", changed)
	setRaw("state", []byte(contract.Compact(e.State)))
	if !a.opts.OmitOrigins {
		origins, merr := e.Provenance.MarshalJSON()
		if merr != nil {
			return nil, merr
		}
		setRaw("origins", origins)
	}
	return out, err
}
