package bootstrap

import (
	"gebeya/pkg/hub"
	"gebeya/pkg/logger"
)

// SetupHub 创建进程级的推送连接注册表
// 返回值同时交给路由层（登记连接）和 main（关停时断开所有连接）
func SetupHub() *hub.Registry {
	registry := hub.NewRegistry()
	logger.InfoString("Hub", "Setup", "推送连接注册表就绪")
	return registry
}
