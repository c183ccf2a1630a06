package contract

import (
	"context"
	"io"
)

// Splitter: 将单个日志源拆分为有序行 Record，并分配 Index（0..n-1）。
// 约束：
// 1) 不跨文件合并；
// 2) Index 严格递增且稳定；空白行丢弃且不占位；
// 3) 仅做最小必要归一（CRLF→LF、相邻 "}{" 断行）；
// 4) 无内部并发、幂等。
type Splitter interface {
	Split(ctx context.Context, fileID FileID, r io.Reader) ([]Record, error)
}
