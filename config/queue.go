package config

import "gebeya/pkg/config"

func init() {
	config.Add("queue", func() map[string]interface{} {
		return map[string]interface{}{
			"rate_limit":   config.Env("QUEUE_RATE_LIMIT", 100),
			"rate_burst":   config.Env("QUEUE_RATE_BURST", 200),
			"worker_count": config.Env("QUEUE_WORKER_COUNT", 4),
			"retry_times":  config.Env("QUEUE_RETRY_TIMES", 3),
			"retry_delay":  config.Env("QUEUE_RETRY_DELAY", 2),
		}
	})
}
