package contract

import "path"

// FileID: 逻辑日志源ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Index: 单个日志源内稳定递增的行序号（0..n-1，空行不占位）。
type Index int64

// Record: 拆分后的原子输入行（不可跨文件）。
// 约束：
// - FileID 一致；
// - Index 自 0 严格递增；
// - Text 已做 CRLF→LF 与 "}{" 粘连归一，非法 UTF-8 字节替换为 U+FFFD，不做业务性清洗；
// - Reject 非空表示拆分阶段已判定该行不可用（如超长），解码器须将其报为非法行。
type Record struct {
	Index  Index
	FileID FileID
	Text   string
	Reject string
}

// StackFrame: 调用栈帧（不透明载荷，核心流程不解释）。
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
	Code     string `json:"code,omitempty"`
}

// Base 返回文件基名；File 为空时返回 "unknown"。
func (f StackFrame) Base() string {
	if f.File == "" {
		return "unknown"
	}
	return path.Base(NormalizeFileIDString(f.File))
}

// FieldChange: 单字段的 before/after 对。
type FieldChange struct {
	Field  string
	Before Value
	After  Value
}

// FieldChanges: 按插入顺序排列的字段变更集合（字段名唯一）。
// 顺序决定同一条记录内的来源覆盖顺序。
type FieldChanges []FieldChange

// Get 按字段名查找。
func (fc FieldChanges) Get(field string) (FieldChange, bool) {
	for _, c := range fc {
		if c.Field == field {
			return c, true
		}
	}
	return FieldChange{}, false
}

// Fields 返回字段名（声明顺序）。
func (fc FieldChanges) Fields() []string {
	out := make([]string, 0, len(fc))
	for _, c := range fc {
		out = append(out, c.Field)
	}
	return out
}

// MarshalJSON 以 {"field":{"before":…,"after":…}} 输出，保持声明顺序。
func (fc FieldChanges) MarshalJSON() ([]byte, error) {
	fields := make([]Field, 0, len(fc))
	for _, c := range fc {
		fields = append(fields, Field{Key: c.Field, Value: Object(
			Field{Key: "before", Value: c.Before},
			Field{Key: "after", Value: c.After},
		)})
	}
	return []byte(Compact(Object(fields...))), nil
}

// ChangeRecord: 一次被记录的方法调用及其修改的字段。解码后不可变。
type ChangeRecord struct {
	Subject   string       `json:"subject"`
	Action    string       `json:"action"`
	Changes   FieldChanges `json:"fieldChanges"`
	Backtrace []StackFrame `json:"backtrace,omitempty"`
}

// Label 返回 "Subject.Action()" 形式的展示名。
func (r ChangeRecord) Label() string {
	return r.Subject + "." + r.Action + "()"
}

// ValueOrigin: 来源回指（非所有权）。多个 ValueOrigin 可指向同一条记录。
type ValueOrigin struct {
	EntryPosition int           `json:"entryPosition"`
	Path          string        `json:"path"`
	Record        *ChangeRecord `json:"-"`
}
