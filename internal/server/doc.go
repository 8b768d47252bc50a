// 版权所有 2024 DebateHub Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 DebateHub 的 HTTP/HTTPS 监听与优雅关闭。

Manager 包装 net/http.Server：Start 非阻塞监听（配置了证书即走 TLS），
服务异常退出时错误进入 Errors() 通道；WaitForShutdown 等待信号、ctx
结束或异常退出后调用 Shutdown。会话推送是被劫持的长连接，
Shutdown 不会等待它们，调用方通过 OnShutdown 注册回调来主动断开。
*/
package server
