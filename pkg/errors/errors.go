package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrLockHeld 分布式锁已被占用（如同一考试重复提交）
var ErrLockHeld = errors.New("操作正在处理中，请勿重复提交")
