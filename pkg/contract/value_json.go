package contract

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Compact 返回紧凑规范编码（等价于 JSON.stringify(v)）。
func Compact(v Value) string {
	var b strings.Builder
	encode(&b, v, "")
	return b.String()
}

// Indent 返回两空格缩进的规范编码（等价于 JSON.stringify(v, null, 2)）。
func Indent(v Value) string {
	var b strings.Builder
	encode(&b, v, "  ")
	return b.String()
}

// MarshalJSON 输出紧凑规范编码。
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(Compact(v)), nil
}

// encFrame: 显式栈帧；i 为下一个待写出的子元素下标。
type encFrame struct {
	v     Value
	i     int
	depth int
}

// encode 使用显式栈遍历，深层嵌套不消耗 goroutine 栈。
func encode(b *strings.Builder, root Value, indent string) {
	stack := []encFrame{{v: root}}
	for len(stack) > 0 {
		top := len(stack) - 1
		fr := stack[top]
		if fr.v.IsScalar() {
			writeScalar(b, fr.v)
			stack = stack[:top]
			continue
		}
		open, closer := byte('['), byte(']')
		if fr.v.kind == KindObject {
			open, closer = '{', '}'
		}
		n := fr.v.Len()
		if fr.i == 0 {
			if n == 0 {
				b.WriteByte(open)
				b.WriteByte(closer)
				stack = stack[:top]
				continue
			}
			b.WriteByte(open)
		}
		if fr.i == n {
			newline(b, indent, fr.depth)
			b.WriteByte(closer)
			stack = stack[:top]
			continue
		}
		if fr.i > 0 {
			b.WriteByte(',')
		}
		newline(b, indent, fr.depth+1)
		var child Value
		if fr.v.kind == KindObject {
			k := fr.v.keys[fr.i]
			writeString(b, k)
			b.WriteByte(':')
			if indent != "" {
				b.WriteByte(' ')
			}
			child = fr.v.fields[k]
		} else {
			child = fr.v.items[fr.i]
		}
		stack[top].i++
		stack = append(stack, encFrame{v: child, depth: fr.depth + 1})
	}
}

func newline(b *strings.Builder, indent string, depth int) {
	if indent == "" {
		return
	}
	b.WriteByte('\n')
	for i := 0; i < depth; i++ {
		b.WriteString(indent)
	}
}

func writeScalar(b *strings.Builder, v Value) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		if v.b {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNumber:
		b.WriteString(FormatNumber(v.num))
	case KindString:
		writeString(b, v.str)
	}
}

// FormatNumber 按 JS Number#toString 的习惯格式化：
// - 非有限值输出 null（JSON 无法表示）；
// - |f| ∈ [1e-6, 1e21) 用定点表示，其余用指数表示（1e+21）。
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// Go: 1e+21 / 1.5e-07；JS: 1e+21 / 1.5e-7
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		mant, exp := s[:i], s[i+1:]
		sign := exp[0]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		s = mant + "e" + string(sign) + digits
	}
	return s
}

const hexDigits = "0123456789abcdef"

// writeString 按 JSON.stringify 规则转义：仅转义引号、反斜杠与控制字符，不做 HTML 转义。
func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				b.WriteString(`\"`)
			case '\\':
				b.WriteString(`\\`)
			case '\b':
				b.WriteString(`\b`)
			case '\f':
				b.WriteString(`\f`)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				if c < 0x20 {
					b.WriteString(`\u00`)
					b.WriteByte(hexDigits[c>>4])
					b.WriteByte(hexDigits[c&0xf])
				} else {
					b.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteString(`�`)
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	b.WriteByte('"')
}
