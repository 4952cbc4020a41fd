package errors

import "errors"

var (
	// ErrCacheMiss 缓存未命中（调用方应回源数据库）
	ErrCacheMiss = errors.New("缓存未命中")
	// ErrCacheStale 回填期间数据已被修改，本次回填被放弃
	ErrCacheStale = errors.New("缓存版本已变更")
)
