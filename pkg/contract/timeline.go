package contract

import (
	"sort"
)

// Provenance: 路径 → 来源 的只读快照。
// 每个 TimelineEntry 持有自己的副本；零值为空快照。
type Provenance struct {
	m map[string]ValueOrigin
}

// NewProvenance 复制 m 构造快照，调用方后续修改 m 不影响结果。
func NewProvenance(m map[string]ValueOrigin) Provenance {
	out := make(map[string]ValueOrigin, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Provenance{m: out}
}

// Lookup 返回 path 的来源；不存在返回 false。
func (p Provenance) Lookup(path string) (ValueOrigin, bool) {
	o, ok := p.m[path]
	return o, ok
}

func (p Provenance) Len() int { return len(p.m) }

// Paths 返回全部路径（字典序，输出稳定）。
func (p Provenance) Paths() []string {
	out := make([]string, 0, len(p.m))
	for k := range p.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON 输出 {path: entryPosition}，按路径字典序。
func (p Provenance) MarshalJSON() ([]byte, error) {
	paths := p.Paths()
	fields := make([]Field, 0, len(paths))
	for _, k := range paths {
		fields = append(fields, Field{Key: k, Value: Number(float64(p.m[k].EntryPosition))})
	}
	return []byte(Compact(Object(fields...))), nil
}

// TimelineEntry: 某一位置的累计状态与来源快照。
// 约束：
// 1) Position 为有效记录的解码顺序（0 起、稠密、单调）；
// 2) 追加后不再修改；State/Provenance 为该位置独占的冻结副本；
// 3) Timestamp 单调递增，仅保证单调性，无其他语义；
// 4) Record 指向时间线持有的记录，与来源回指共享，只读。
type TimelineEntry struct {
	Position   int           `json:"position"`
	Record     *ChangeRecord `json:"record"`
	State      Value         `json:"state"`
	Provenance Provenance    `json:"origins"`
	Timestamp  int64         `json:"timestamp"`
}

// ChangedCount: 本条记录修改的字段数。
func (e TimelineEntry) ChangedCount() int {
	if e.Record == nil {
		return 0
	}
	return len(e.Record.Changes)
}

// TotalCount: 当前状态的根字段数。
func (e TimelineEntry) TotalCount() int { return e.State.Len() }
