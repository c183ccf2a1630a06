package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志编码）。
var (
	// ErrRecordInvalid: 单行无法解析为 ChangeRecord；可恢复（跳过并计数）。
	ErrRecordInvalid = errors.New("record invalid")
	// ErrOutOfRange: 查询位置越界。查询接口本身返回空结果，仅供外层（HTTP/CLI）表达“无数据”。
	ErrOutOfRange = errors.New("position out of range")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 编程式输入违例（如空组件）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
