package timeline

import "snaptrace/pkg/contract"

// StateAt 返回 pos 处的状态快照；越界返回空映射。
func StateAt(tl *Timeline, pos int) contract.Value {
	e, ok := tl.Entry(pos)
	if !ok {
		return contract.EmptyObject()
	}
	return e.State
}

// ChangesAt 返回 pos 处记录自身的字段变更（非累计）的副本；越界返回 nil。
func ChangesAt(tl *Timeline, pos int) contract.FieldChanges {
	e, ok := tl.Entry(pos)
	if !ok || e.Record == nil {
		return nil
	}
	return append(contract.FieldChanges(nil), e.Record.Changes...)
}

// OriginOf 返回 pos 处 path 的来源；路径不存在（或已过期）返回 false。
func OriginOf(tl *Timeline, pos int, path string) (contract.ValueOrigin, bool) {
	e, ok := tl.Entry(pos)
	if !ok {
		return contract.ValueOrigin{}, false
	}
	o, ok := e.Provenance.Lookup(path)
	if !ok {
		return contract.ValueOrigin{}, false
	}
	if tl.retainStale {
		if _, live := contract.Lookup(e.State, path); !live {
			return contract.ValueOrigin{}, false
		}
	}
	return o, true
}

// OriginEntry 返回建立 path 当前值的那一条目（用于跳转查看其调用栈）。
func OriginEntry(tl *Timeline, pos int, path string) (Entry, bool) {
	o, ok := OriginOf(tl, pos, path)
	if !ok {
		return Entry{}, false
	}
	return tl.Entry(o.EntryPosition)
}
