/*
Package testutil 是各包测试共享的小工具。

  - TestContext: 带超时、自动取消的 context
  - AssertErrorCode: 按 types.ErrorCode 断言错误

子包 mocks 提供可编程的 llm.Provider，fixtures 提供小型人设面板
与评分请求的识别、应答辅助。
*/
package testutil
