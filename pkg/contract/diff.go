package contract

// DiffKind: 差异行类型。
type DiffKind string

const (
	DiffUnchanged DiffKind = "unchanged"
	DiffAdded     DiffKind = "added"
	DiffRemoved   DiffKind = "removed"
)

// DiffLine: 结构比较结果的一行。LineNumber 为 1 起的行号，0 表示无行号。
type DiffLine struct {
	Kind       DiffKind `json:"type"`
	Content    string   `json:"content"`
	LineNumber int      `json:"lineNumber,omitempty"`
}

// DiffView: 交给渲染器的只读视图（已截断）。
type DiffView struct {
	// Title: 展示标题，例如 "x @ 3"；可为空。
	Title   string
	Before  Value
	After   Value
	Lines   []DiffLine
	Changes int
	Omitted int
}
