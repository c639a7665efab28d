package common

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gogf/gf/v2/frame/g"
)

// RecoverToError 捕获 panic 并写入 errp，调用方可以把 panic 当作普通错误处理
//
// 使用示例:
//
//	func work() (err error) {
//	    defer RecoverToError(ctx, "embed-batch", &err)
//	    ...
//	}
func RecoverToError(ctx context.Context, taskName string, errp *error) {
	if r := recover(); r != nil {
		g.Log().Criticalf(ctx,
			"[PANIC RECOVERED] Task: %s\nError: %v\nStack Trace:\n%s",
			taskName, r, string(debug.Stack()))
		if errp != nil {
			*errp = fmt.Errorf("panic in task %s: %v", taskName, r)
		}
	}
}
