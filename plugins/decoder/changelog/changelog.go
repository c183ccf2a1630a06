package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"snaptrace/pkg/contract"
)

// Options: 解码宽松度。
type Options struct {
	// StrictKeys: 为 true 时仅接受 subject/action/fieldChanges，
	// 拒绝旧键名 class/method/changes。
	StrictKeys bool `json:"strict_keys"`
}

type decoder struct {
	strict bool
}

var _ contract.Decoder = (*decoder)(nil)

// New 从原样 JSON Options 创建解码器（严格解析，未知字段报错）。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("changelog options: %w", err)
		}
	}
	return &decoder{strict: opts.StrictKeys}, nil
}

// 键名 → 别名（旧日志格式）
var aliases = map[string]string{
	"class":   "subject",
	"method":  "action",
	"changes": "fieldChanges",
}

// Decode 将单行解析为 ChangeRecord。
// 期望：{"subject":string,"action":string,"fieldChanges":{field:{before,after}},"backtrace"?:[frame]}
func (d *decoder) Decode(ctx context.Context, rec contract.Record) (contract.ChangeRecord, error) {
	select {
	case <-ctx.Done():
		return contract.ChangeRecord{}, ctx.Err()
	default:
	}
	if rec.Reject != "" {
		return contract.ChangeRecord{}, invalid(rec, rec.Reject)
	}
	text := strings.TrimSpace(rec.Text)
	if !gjson.Valid(text) {
		return contract.ChangeRecord{}, invalid(rec, "malformed json")
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return contract.ChangeRecord{}, invalid(rec, "record is not an object")
	}

	var (
		out                    contract.ChangeRecord
		hasSubj, hasAct, hasFC bool
		fc, bt                 gjson.Result
		hasBT                  bool
		bad                    string
	)
	root.ForEach(func(key, value gjson.Result) bool {
		k := key.Str
		if canon, ok := aliases[k]; ok {
			if d.strict {
				bad = fmt.Sprintf("legacy key %q not allowed", k)
				return false
			}
			k = canon
		}
		switch k {
		case "subject":
			if value.Type != gjson.String {
				bad = "subject must be a string"
				return false
			}
			out.Subject, hasSubj = value.Str, true
		case "action":
			if value.Type != gjson.String {
				bad = "action must be a string"
				return false
			}
			out.Action, hasAct = value.Str, true
		case "fieldChanges":
			fc, hasFC = value, true
		case "backtrace":
			bt, hasBT = value, true
		}
		return true
	})
	if bad != "" {
		return contract.ChangeRecord{}, invalid(rec, bad)
	}
	switch {
	case !hasSubj:
		return contract.ChangeRecord{}, invalid(rec, "missing subject")
	case !hasAct:
		return contract.ChangeRecord{}, invalid(rec, "missing action")
	case !hasFC:
		return contract.ChangeRecord{}, invalid(rec, "missing fieldChanges")
	case !fc.IsObject():
		return contract.ChangeRecord{}, invalid(rec, "fieldChanges must be an object")
	}

	changes, why := decodeChanges(fc)
	if why != "" {
		return contract.ChangeRecord{}, invalid(rec, why)
	}
	out.Changes = changes
	if hasBT && bt.IsArray() {
		out.Backtrace = decodeBacktrace(bt)
	}
	return out, nil
}

// decodeChanges 按文档顺序解析字段变更；重复字段保留首次位置、取最后的值。
func decodeChanges(fc gjson.Result) (contract.FieldChanges, string) {
	var (
		out contract.FieldChanges
		pos = map[string]int{}
		bad string
	)
	fc.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			bad = fmt.Sprintf("change for %q must be an object", key.Str)
			return false
		}
		c := contract.FieldChange{Field: key.Str, Before: contract.Null(), After: contract.Null()}
		value.ForEach(func(k, v gjson.Result) bool {
			switch k.Str {
			case "before":
				c.Before = ValueOf(v)
			case "after":
				c.After = ValueOf(v)
			}
			return true
		})
		if i, ok := pos[c.Field]; ok {
			out[i] = c
			return true
		}
		pos[c.Field] = len(out)
		out = append(out, c)
		return true
	})
	return out, bad
}

// decodeBacktrace: 非对象帧跳过；字段类型不符时取零值。
func decodeBacktrace(bt gjson.Result) []contract.StackFrame {
	var out []contract.StackFrame
	bt.ForEach(func(_, fr gjson.Result) bool {
		if !fr.IsObject() {
			return true
		}
		var f contract.StackFrame
		fr.ForEach(func(k, v gjson.Result) bool {
			switch k.Str {
			case "file":
				if v.Type == gjson.String {
					f.File = v.Str
				}
			case "line":
				if v.Type == gjson.Number {
					f.Line = int(v.Int())
				}
			case "function":
				if v.Type == gjson.String {
					f.Function = v.Str
				}
			case "code":
				if v.Type == gjson.String {
					f.Code = v.Str
				}
			}
			return true
		})
		out = append(out, f)
		return true
	})
	return out
}

func invalid(rec contract.Record, msg string) error {
	return fmt.Errorf("line %d: %s: %w", rec.Index, msg, contract.ErrRecordInvalid)
}
