package contract

import (
	"context"
	"io"
)

// Renderer: 将 DiffView 渲染到 w（终端着色、unified patch 等）。
// 核心不产出任何格式信息，格式完全由实现决定。
type Renderer interface {
	Render(ctx context.Context, w io.Writer, v DiffView) error
}
