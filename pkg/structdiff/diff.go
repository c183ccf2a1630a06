// Package structdiff 生成两个值之间的紧凑结构差异。
//
// 分派：两侧均为非空映射时做键级比较并压缩；否则对两侧的两空格缩进编码做逐行位置对齐比较。
// 位置对齐比较不做 LCS 重新对齐，插入/删除之后的行会整体表现为替换。
package structdiff

import (
	"fmt"
	"sort"
	"strings"

	"snaptrace/pkg/contract"
)

// Line 为差异行；LineNumber 为 0 表示无行号。
type Line = contract.DiffLine

const (
	Unchanged = contract.DiffUnchanged
	Added     = contract.DiffAdded
	Removed   = contract.DiffRemoved
)

// 固定文案
const (
	NoChanges     = "No changes"
	ObjectChanged = "<object changed>"
)

// DefaultPlaceholder 识别 "<Foo object at 0x7f…>" 一类的对象标识占位串。
func DefaultPlaceholder(s string) bool { return strings.Contains(s, "object at 0x") }

// Options 差异生成选项。
type Options struct {
	// IsPlaceholder: 判断字符串是否为不透明的对象标识占位；nil 使用 DefaultPlaceholder。
	IsPlaceholder func(string) bool
}

// Differ 为无状态的差异生成器，可并发使用。
type Differ struct {
	isPlaceholder func(string) bool
}

// New 创建差异生成器。
func New(opts Options) *Differ {
	p := opts.IsPlaceholder
	if p == nil {
		p = DefaultPlaceholder
	}
	return &Differ{isPlaceholder: p}
}

var std = New(Options{})

// Result: 截断后的差异行与派生统计。
type Result struct {
	Lines []Line
	// Total: 截断前的行数
	Total int
	// Omitted: 被截断的行数
	Omitted int
	// Changes: 截断前的 added/removed 行数
	Changes int
}

// Truncated 报告是否发生截断。
func (r Result) Truncated() bool { return r.Omitted > 0 }

// Diff 使用默认占位判定比较 before/after；maxLines <= 0 表示不截断。
func Diff(before, after contract.Value, maxLines int) Result {
	return std.Diff(before, after, maxLines)
}

// Diff 比较 before/after 并按 maxLines 截断。
func (d *Differ) Diff(before, after contract.Value, maxLines int) Result {
	lines := d.Lines(before, after)
	res := Result{Lines: lines, Total: len(lines)}
	for _, l := range lines {
		if l.Kind != Unchanged {
			res.Changes++
		}
	}
	if maxLines > 0 && len(lines) > maxLines {
		res.Lines = lines[:maxLines:maxLines]
		res.Omitted = len(lines) - maxLines
	}
	return res
}

// Lines 返回完整（未截断）的差异行。
func (d *Differ) Lines(before, after contract.Value) []Line {
	if before.Kind() == contract.KindObject && after.Kind() == contract.KindObject {
		return d.mappingDiff(before, after)
	}
	return LineDiff(strings.Split(contract.Indent(before), "\n"), strings.Split(contract.Indent(after), "\n"))
}

// mappingDiff: 键级比较。
// 纯新增/纯删除压缩为一行；混合变更列出排序后的变更键与未变更计数。
func (d *Differ) mappingDiff(before, after contract.Value) []Line {
	var added, removed, altered []string
	for i := 0; i < after.Len(); i++ {
		if k := after.KeyAt(i); !before.Has(k) {
			added = append(added, k)
		}
	}
	for i := 0; i < before.Len(); i++ {
		k := before.KeyAt(i)
		bv, _ := before.Get(k)
		av, ok := after.Get(k)
		switch {
		case !ok:
			removed = append(removed, k)
		case contract.Compact(bv) != contract.Compact(av):
			altered = append(altered, k)
		}
	}

	switch {
	case len(added) == 0 && len(removed) == 0 && len(altered) == 0:
		return []Line{{Kind: Unchanged, Content: NoChanges}}
	case len(removed) == 0 && len(altered) == 0:
		return []Line{{Kind: Added, Content: summarize("+", added, "added")}}
	case len(added) == 0 && len(altered) == 0:
		return []Line{{Kind: Removed, Content: summarize("-", removed, "removed")}}
	}

	show := make([]string, 0, len(added)+len(removed)+len(altered))
	show = append(show, added...)
	show = append(show, removed...)
	show = append(show, altered...)
	sort.Strings(show)

	out := make([]Line, 0, len(show)+len(altered)+3)
	out = append(out, Line{Kind: Unchanged, Content: "{"})
	for _, k := range show {
		bv, inBefore := before.Get(k)
		av, inAfter := after.Get(k)
		switch {
		case !inBefore:
			out = append(out, Line{Kind: Added, Content: keyLine(k, contract.Compact(av))})
		case !inAfter:
			out = append(out, Line{Kind: Removed, Content: keyLine(k, contract.Compact(bv))})
		case d.bothPlaceholders(bv, av):
			out = append(out,
				Line{Kind: Removed, Content: keyLine(k, ObjectChanged)},
				Line{Kind: Added, Content: keyLine(k, ObjectChanged)},
			)
		default:
			out = append(out,
				Line{Kind: Removed, Content: keyLine(k, contract.Compact(bv))},
				Line{Kind: Added, Content: keyLine(k, contract.Compact(av))},
			)
		}
	}
	// 并集大小 = before 键数 + 新增键数
	unchanged := before.Len() + len(added) - len(show)
	out = append(out,
		Line{Kind: Unchanged, Content: fmt.Sprintf("  // ... %d unchanged keys", unchanged)},
		Line{Kind: Unchanged, Content: "}"},
	)
	return out
}

func (d *Differ) bothPlaceholders(a, b contract.Value) bool {
	return a.Kind() == contract.KindString && b.Kind() == contract.KindString &&
		d.isPlaceholder(a.Str()) && d.isPlaceholder(b.Str())
}

// summarize: `+ "k" added` 或 `+ N keys added: "a", "b", "c"...`（最多列 3 个）。
func summarize(sign string, keys []string, verb string) string {
	if len(keys) == 1 {
		return fmt.Sprintf(`%s "%s" %s`, sign, keys[0], verb)
	}
	n := len(keys)
	if n > 3 {
		keys = keys[:3]
	}
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = `"` + k + `"`
	}
	s := fmt.Sprintf("%s %d keys %s: %s", sign, n, verb, strings.Join(quoted, ", "))
	if n > 3 {
		s += "..."
	}
	return s
}

func keyLine(key, val string) string {
	return `  "` + key + `": ` + val
}

// LineDiff 逐行位置对齐比较。
// 相等 → unchanged；一侧耗尽 → 另一侧剩余行为 added/removed；不等 → removed(before) 后跟 added(after)。
// 行号：unchanged/removed 取 before 侧下标+1，added 取 after 侧下标+1。
func LineDiff(before, after []string) []Line {
	out := make([]Line, 0, max(len(before), len(after)))
	bi, ai := 0, 0
	for bi < len(before) || ai < len(after) {
		switch {
		case bi >= len(before):
			out = append(out, Line{Kind: Added, Content: after[ai], LineNumber: ai + 1})
			ai++
		case ai >= len(after):
			out = append(out, Line{Kind: Removed, Content: before[bi], LineNumber: bi + 1})
			bi++
		case before[bi] == after[ai]:
			out = append(out, Line{Kind: Unchanged, Content: before[bi], LineNumber: bi + 1})
			bi++
			ai++
		default:
			out = append(out,
				Line{Kind: Removed, Content: before[bi], LineNumber: bi + 1},
				Line{Kind: Added, Content: after[ai], LineNumber: ai + 1},
			)
			bi++
			ai++
		}
	}
	return out
}

// InlinePair: 标量对的行内对比（消费方并排显示）。
type InlinePair struct {
	Before string
	After  string
	Equal  bool
}

// Inline 返回两侧的紧凑编码；ok 为 false 表示至少一侧不是标量，应使用 Diff。
func Inline(before, after contract.Value) (InlinePair, bool) {
	if !before.IsScalar() || !after.IsScalar() {
		return InlinePair{}, false
	}
	b, a := contract.Compact(before), contract.Compact(after)
	return InlinePair{Before: b, After: a, Equal: b == a}, true
}

// View 组装渲染视图（截断后的结果 + 原值）。
func View(title string, before, after contract.Value, r Result) contract.DiffView {
	return contract.DiffView{
		Title:   title,
		Before:  before,
		After:   after,
		Lines:   r.Lines,
		Changes: r.Changes,
		Omitted: r.Omitted,
	}
}
