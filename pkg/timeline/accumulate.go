package timeline

import (
	"snaptrace/pkg/contract"
)

// Entry: 某一位置的冻结快照。
type Entry = contract.TimelineEntry

// Timeline: 追加完成后只读，可跨 goroutine 共享。
type Timeline struct {
	entries     []Entry
	retainStale bool
}

type settings struct {
	epoch       int64
	retainStale bool
}

// Option 调整累积行为。
type Option func(*settings)

// WithEpoch 设置时间戳起点（毫秒）；Timestamp = epoch + position*1000。默认 0。
func WithEpoch(ms int64) Option {
	return func(s *settings) { s.epoch = ms }
}

// WithRetainStaleOrigins 关闭写时修剪：容器被整体替换后，旧的后代路径来源保留在索引中。
// 此模式下 OriginOf 会校验路径在当前状态中仍可解析。
func WithRetainStaleOrigins() Option {
	return func(s *settings) { s.retainStale = true }
}

// pathItem: 来源遍历工作项。
type pathItem struct {
	path string
	v    contract.Value
}

// Accumulate 按顺序折叠记录，生成时间线。
// 每条记录的字段按声明顺序整体替换；来源索引对字段本身、每个中间容器与每个叶子记录回指。
func Accumulate(records []contract.ChangeRecord, opts ...Option) *Timeline {
	var set settings
	for _, o := range opts {
		if o != nil {
			o(&set)
		}
	}
	// 记录副本由时间线持有，来源回指指向这里
	own := make([]contract.ChangeRecord, len(records))
	for i, r := range records {
		own[i] = r
		own[i].Changes = append(contract.FieldChanges(nil), r.Changes...)
		own[i].Backtrace = append([]contract.StackFrame(nil), r.Backtrace...)
	}

	tl := &Timeline{entries: make([]Entry, 0, len(own)), retainStale: set.retainStale}
	state := contract.EmptyObject()
	origins := map[string]contract.ValueOrigin{}
	// 路径 → 写入它的根字段；用于写时修剪
	owner := map[string]string{}
	owned := map[string][]string{}
	// 根字段 → 最近一次以根字段身份写入的来源；路径与其他字段的后代重名时用于恢复
	rootOrigin := map[string]contract.ValueOrigin{}

	stack := make([]pathItem, 0, 16)
	for pos := range own {
		rec := &own[pos]
		for _, c := range rec.Changes {
			state = state.With(c.Field, c.After)
			if !set.retainStale {
				for _, p := range owned[c.Field] {
					if owner[p] != c.Field {
						continue
					}
					if ro, ok := rootOrigin[p]; ok && p != c.Field {
						origins[p] = ro
						owner[p] = p
						continue
					}
					delete(origins, p)
					delete(owner, p)
				}
				owned[c.Field] = owned[c.Field][:0]
			}
			rootOrigin[c.Field] = contract.ValueOrigin{EntryPosition: pos, Path: c.Field, Record: rec}
			// 先序遍历（文档顺序），逆序压栈
			stack = append(stack[:0], pathItem{path: c.Field, v: c.After})
			for len(stack) > 0 {
				it := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				origins[it.path] = contract.ValueOrigin{EntryPosition: pos, Path: it.path, Record: rec}
				if !set.retainStale {
					owner[it.path] = c.Field
					owned[c.Field] = append(owned[c.Field], it.path)
				}
				switch it.v.Kind() {
				case contract.KindArray:
					for i := it.v.Len() - 1; i >= 0; i-- {
						x, _ := it.v.Index(i)
						stack = append(stack, pathItem{path: contract.JoinIndex(it.path, i), v: x})
					}
				case contract.KindObject:
					for i := it.v.Len() - 1; i >= 0; i-- {
						k := it.v.KeyAt(i)
						x, _ := it.v.Get(k)
						stack = append(stack, pathItem{path: contract.JoinKey(it.path, k), v: x})
					}
				}
			}
		}
		tl.entries = append(tl.entries, Entry{
			Position:   pos,
			Record:     rec,
			State:      state,
			Provenance: contract.NewProvenance(origins),
			Timestamp:  set.epoch + int64(pos)*1000,
		})
	}
	return tl
}

// Len 返回条目数（= 成功解码的记录数）。
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entry 返回 pos 处的条目；越界返回 false。
// Entry.Record 与来源中的 Record 为时间线内部共享，调用方只读。
func (t *Timeline) Entry(pos int) (Entry, bool) {
	if t == nil || pos < 0 || pos >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[pos], true
}

// Entries 返回条目切片的副本（条目本身不可变）。
func (t *Timeline) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// RetainsStaleOrigins 报告是否以保留旧来源模式构建。
func (t *Timeline) RetainsStaleOrigins() bool { return t != nil && t.retainStale }
