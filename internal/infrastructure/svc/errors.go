package svc

import "errors"

// ErrNoFeedsEnabled 错误：没有可用的行情源
var ErrNoFeedsEnabled = errors.New("no datafeed providers enabled")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrUnknownProvider 错误：配置了未注册的行情源
var ErrUnknownProvider = errors.New("unknown datafeed provider")
