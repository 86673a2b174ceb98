package bootstrap

import (
	"fmt"

	"gebeya/pkg/config"
	"gebeya/pkg/redis"
)

// SetupRedis 初始化 Redis
func SetupRedis() {
	// 业务库和队列库共用一个地址，分库隔离
	redis.InitRedis(
		fmt.Sprintf("%v:%v", config.GetString("redis.host"), config.GetString("redis.port")),
		config.GetString("redis.username"),
		config.GetString("redis.password"),
		config.GetInt("redis.database"),
		config.GetInt("redis.queue_database"),
	)
}
