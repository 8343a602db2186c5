package server

import "errors"

// 预定义错误.
var (
	// ErrNilHandler 处理器为空.
	ErrNilHandler = errors.New("server: handler 不能为空")
	// ErrAddrEmpty 地址为空.
	ErrAddrEmpty = errors.New("server: 监听地址不能为空")
	// ErrServerRunning 服务器正在运行.
	ErrServerRunning = errors.New("server: 服务器正在运行")
)
