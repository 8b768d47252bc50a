// Package tlsutil 集中出站与监听端的 TLS 设置：TLS 1.2 起步，只用 AEAD 套件。
// LLM、嵌入、Qdrant、Redis 客户端与 HTTPS 监听都从这里取配置。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"slices"
	"time"
)

var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// IsAEAD 报告套件是否在允许列表内
func IsAEAD(suite uint16) bool {
	return slices.Contains(aeadSuites, suite)
}

// Client 出站连接用；每次返回新副本，调用方可以改 ServerName
func Client() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: slices.Clone(aeadSuites),
	}
}

// Server 监听端用，优先 X25519
func Server() *tls.Config {
	cfg := Client()
	cfg.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256}
	return cfg
}

// Transport 走环境代理。perHost 是每个上游保留的空闲连接数，
// 一场辩论的评分扇出会同时打到同一个 LLM 端点。
func Transport(perHost int) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       Client(),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          4 * max(perHost, 1),
		MaxIdleConnsPerHost:   max(perHost, 1),
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// HTTPClient timeout 为 0 时由调用方的 context 控制截止时间
func HTTPClient(timeout time.Duration, perHost int) *http.Client {
	return &http.Client{Timeout: timeout, Transport: Transport(perHost)}
}
