package changelog

import (
	"github.com/tidwall/gjson"

	"snaptrace/pkg/contract"
)

// buildFrame: 显式栈帧。kids 为直接子节点（文档顺序），built 为已构造的子值。
type buildFrame struct {
	res   gjson.Result
	keys  []string
	kids  []gjson.Result
	built []contract.Value
}

// ValueOf 将已校验的 gjson 结果转换为 contract.Value，保留对象键的文档顺序。
// 使用显式栈构造，嵌套深度不受 goroutine 栈限制。
func ValueOf(r gjson.Result) contract.Value {
	if !r.IsObject() && !r.IsArray() {
		return scalarOf(r)
	}
	stack := []*buildFrame{expand(r)}
	var done contract.Value
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if i := len(top.built); i < len(top.kids) {
			kid := top.kids[i]
			if kid.IsObject() || kid.IsArray() {
				stack = append(stack, expand(kid))
				continue
			}
			top.built = append(top.built, scalarOf(kid))
			continue
		}
		// 当前帧全部子值就绪
		var v contract.Value
		if top.res.IsObject() {
			fields := make([]contract.Field, len(top.kids))
			for i := range top.kids {
				fields[i] = contract.Field{Key: top.keys[i], Value: top.built[i]}
			}
			v = contract.Object(fields...)
		} else {
			v = contract.Array(top.built...)
		}
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			done = v
			break
		}
		parent := stack[len(stack)-1]
		parent.built = append(parent.built, v)
	}
	return done
}

func expand(r gjson.Result) *buildFrame {
	f := &buildFrame{res: r}
	obj := r.IsObject()
	r.ForEach(func(k, v gjson.Result) bool {
		if obj {
			f.keys = append(f.keys, k.Str)
		}
		f.kids = append(f.kids, v)
		return true
	})
	f.built = make([]contract.Value, 0, len(f.kids))
	return f
}

func scalarOf(r gjson.Result) contract.Value {
	switch r.Type {
	case gjson.True:
		return contract.Bool(true)
	case gjson.False:
		return contract.Bool(false)
	case gjson.Number:
		return contract.Number(r.Num)
	case gjson.String:
		return contract.String(r.Str)
	default:
		return contract.Null()
	}
}
