package adapter

import "fmt"

// ConnectivityError 无法建立数据库连接（致命，中止整轮分析）
type ConnectivityError struct {
	Driver string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("连接数据库失败 (%s): %v", e.Driver, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// MetadataError 目标 schema 不可读（权限不足、schema 不存在等）
type MetadataError struct {
	Table string
	Err   error
}

func (e *MetadataError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("读取表 %s 的元数据失败: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("读取元数据失败: %v", e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// SamplingError 某个表/列无法采样（降级为无证据，不中止流水线）
type SamplingError struct {
	Table  string
	Column string
	Err    error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("采样 %s.%s 失败: %v", e.Table, e.Column, e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }
