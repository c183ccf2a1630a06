package contract

import (
	"path"
	"strconv"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(NormalizeFileIDString(p))
}

// NormalizeFileIDString 同 NormalizeFileID，返回字符串形式。
func NormalizeFileIDString(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// JoinKey: 映射成员路径 base.key。
func JoinKey(base, key string) string {
	return base + "." + key
}

// JoinIndex: 序列元素路径 base[i]。
func JoinIndex(base string, i int) string {
	return base + "[" + strconv.Itoa(i) + "]"
}

// IsUnder 判断 p 是否严格位于 root 之下（root.x 或 root[i]…）。
func IsUnder(p, root string) bool {
	if len(p) <= len(root) || !strings.HasPrefix(p, root) {
		return false
	}
	c := p[len(root)]
	return c == '.' || c == '['
}

// Lookup 在状态映射 state 上解析路径，返回对应值。
// 键本身可能含 '.' 或 '['：每层按“存在的最长键”匹配，使 JoinKey/JoinIndex 产生的路径总可回解。
// 使用显式回溯栈而非递归。
func Lookup(state Value, p string) (Value, bool) {
	if state.Kind() != KindObject || p == "" {
		return Value{}, false
	}
	type cand struct {
		v    Value
		rest string
	}
	// 根层：路径首段为字段名，无前导分隔符
	stack := make([]cand, 0, 4)
	for _, k := range matchKeys(state, p) {
		stack = append(stack, cand{v: state.fields[k], rest: p[len(k):]})
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c.rest == "" {
			return c.v, true
		}
		switch c.rest[0] {
		case '[':
			if c.v.Kind() != KindArray {
				continue
			}
			end := strings.IndexByte(c.rest, ']')
			if end < 0 {
				continue
			}
			i, err := strconv.Atoi(c.rest[1:end])
			if err != nil {
				continue
			}
			if x, ok := c.v.Index(i); ok {
				stack = append(stack, cand{v: x, rest: c.rest[end+1:]})
			}
		case '.':
			if c.v.Kind() != KindObject {
				continue
			}
			rest := c.rest[1:]
			for _, k := range matchKeys(c.v, rest) {
				stack = append(stack, cand{v: c.v.fields[k], rest: rest[len(k):]})
			}
		}
	}
	return Value{}, false
}

// matchKeys 返回 obj 中可作为 rest 前缀、且后继为分隔符或结尾的键；
// 按长度升序，使出栈时优先尝试最长键。
func matchKeys(obj Value, rest string) []string {
	var out []string
	for _, k := range obj.keys {
		if !strings.HasPrefix(rest, k) {
			continue
		}
		if len(rest) == len(k) || rest[len(k)] == '.' || rest[len(k)] == '[' {
			out = append(out, k)
		}
	}
	// 插入排序：键数量通常很小
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) < len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
