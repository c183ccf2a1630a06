package contract

import "context"

// Decoder: 将单行 Record 解码为 ChangeRecord。
// 约束：
// 1) 逐行独立，无跨行状态；
// 2) 失败返回包装 ErrRecordInvalid 的错误，由调用方跳过并计数，不得中止整体解码；
// 3) 字段变更保持文档中的声明顺序。
type Decoder interface {
	Decode(ctx context.Context, rec Record) (ChangeRecord, error)
}
