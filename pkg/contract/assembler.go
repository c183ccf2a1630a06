package contract

import (
	"context"
	"io"
)

// Assembler: 将时间线条目序列装配为导出字节流（单文件）。
// 约束：
//  1. 仅对同一 FileID 的条目进行装配；
//  2. 按 Position 严格升序输出；
//  3. 不修改条目内容；
//  4. 序列违规返回 ErrInvariantViolation。
type Assembler interface {
	Assemble(ctx context.Context, fileID FileID, entries []TimelineEntry) (io.Reader, error)
}
