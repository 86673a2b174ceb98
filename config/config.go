// Package config 站点配置信息
package config

// Initialize 触发加载本目录下的所有配置
// 真正的注册发生在各文件的 init()，这里只为显式触发包加载
func Initialize() {
	// 什么也不做
}
