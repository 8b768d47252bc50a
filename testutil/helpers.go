package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/debatehub/types"
)

// TestContext 30 秒超时，随测试结束取消
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertErrorCode 断言 err 链上的 *types.Error 携带 code
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) bool {
	t.Helper()
	if !assert.Error(t, err, "expected %s", code) {
		return false
	}
	return assert.Equal(t, code, types.GetErrorCode(err), "error: %v", err)
}
