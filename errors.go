package lanlink

import "errors"

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrInvalidOption 无效的选项
	ErrInvalidOption = errors.New("invalid option")
)
