package registry

import (
	"bytes"
	"encoding/json"

	"snaptrace/pkg/contract"
	ajsonl "snaptrace/plugins/assembler/jsonl"
	dchg "snaptrace/plugins/decoder/changelog"
	rfs "snaptrace/plugins/reader/filesystem"
	rterm "snaptrace/plugins/renderer/terminal"
	runi "snaptrace/plugins/renderer/unified"
	slines "snaptrace/plugins/splitter/lines"
	wfs "snaptrace/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewRenderer 工厂签名：接收原样 JSON Options。
type NewRenderer func(raw json.RawMessage) (contract.Renderer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// lines: 按行拆分，修复 "}{" 粘连
	"lines": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts slines.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return slines.New(&opts), nil
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// changelog: 每行一个 {subject,action,fieldChanges,backtrace?} 对象
	"changelog": func(raw json.RawMessage) (contract.Decoder, error) { return dchg.New(raw) },
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// jsonl: 每个时间线条目一行 JSON
	"jsonl": func(raw json.RawMessage) (contract.Assembler, error) { return ajsonl.New(raw) },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置，"-" 为 stdout）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Renderer 工厂注册表。
var Renderer = map[string]NewRenderer{
	// terminal: 带颜色的 +/- 行
	"terminal": func(raw json.RawMessage) (contract.Renderer, error) { return rterm.New(raw) },
	// unified: 标准 unified diff 文本
	"unified": func(raw json.RawMessage) (contract.Renderer, error) { return runi.New(raw) },
}
