package contract

// Kind: Value 的封闭标签集合。
// 标量 = Null/Bool/Number/String；序列 = Array；映射 = Object。
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value: 递归值（标签联合）。
// 约束：
// 1) 不可变：不提供原地修改方法，With 返回新对象（写时复制）；
// 2) Object 保留键的插入顺序（即 JSON 文档顺序）；
// 3) 零值为 Null。
type Value struct {
	kind   Kind
	b      bool
	num    float64
	str    string
	items  []Value
	keys   []string
	fields map[string]Value
}

// Field: 构造 Object 时的有序键值对。
type Field struct {
	Key   string
	Value Value
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array 复制 items，调用方后续修改切片不影响返回值。
func Array(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindArray, items: out}
}

// Object 按给定顺序构造映射。
// 重复键：保留首次出现的位置，取最后一次的值（与 JSON.parse 一致）。
func Object(fields ...Field) Value {
	v := Value{kind: KindObject, keys: make([]string, 0, len(fields)), fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		if _, ok := v.fields[f.Key]; !ok {
			v.keys = append(v.keys, f.Key)
		}
		v.fields[f.Key] = f.Value
	}
	return v
}

// EmptyObject 返回无键映射。
func EmptyObject() Value { return Object() }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsScalar() bool { return v.kind != KindArray && v.kind != KindObject }
func (v Value) IsContainer() bool { return v.kind == KindArray || v.kind == KindObject }

// Bool/Float/Str 返回对应标量；类型不符时返回零值。
func (v Value) Bool() bool { return v.kind == KindBool && v.b }
func (v Value) Float() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.num
}
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// Len: Array 为元素数，Object 为键数，标量为 0。
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	default:
		return 0
	}
}

// Index 返回第 i 个元素；越界或非 Array 返回 (Null, false)。
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Value{}, false
	}
	return v.items[i], true
}

// Keys 返回键的副本（插入顺序）。
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// KeyAt 返回第 i 个键；用于不分配的有序遍历。
func (v Value) KeyAt(i int) string {
	if v.kind != KindObject || i < 0 || i >= len(v.keys) {
		return ""
	}
	return v.keys[i]
}

// Get 按键取值。
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	x, ok := v.fields[key]
	return x, ok
}

// Has 判断键是否存在。
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// With 返回替换（或追加）key 后的新 Object；原值不变。
// 非 Object 视为空映射。
func (v Value) With(key string, x Value) Value {
	n := v.Len()
	if v.kind != KindObject {
		n = 0
	}
	out := Value{kind: KindObject, keys: make([]string, 0, n+1), fields: make(map[string]Value, n+1)}
	if v.kind == KindObject {
		out.keys = append(out.keys, v.keys...)
		for k, fv := range v.fields {
			out.fields[k] = fv
		}
	}
	if _, ok := out.fields[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.fields[key] = x
	return out
}

// Equal 以规范紧凑编码比较（键顺序参与比较）。
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return Compact(v) == Compact(o)
	case KindString:
		return v.str == o.str
	default:
		return Compact(v) == Compact(o)
	}
}
