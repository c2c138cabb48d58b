package domain

import "errors"

// 错误分类：边界层（HTTP）据此映射状态码
var (
	// ErrValidation 缺失或非法的必填字段（用户输入问题，4xx）
	ErrValidation = errors.New("validation error")
	// ErrNotFound 引用的实体不存在
	ErrNotFound = errors.New("not found")
	// ErrIncompleteResponse 评估缺少必答题的回答
	ErrIncompleteResponse = errors.New("incomplete assessment response")
	// ErrConflict 状态冲突（如重复创建、并发写入失败）
	ErrConflict = errors.New("conflict")
	// ErrInternal 其他非预期错误（持久化失败、程序缺陷）
	ErrInternal = errors.New("internal error")
)
