package config

import "gebeya/pkg/config"

func init() {
	config.Add("payment", func() map[string]interface{} {
		return map[string]interface{}{

			// 未拿到货币时的兜底值，统一记账货币
			"default_currency": config.Env("PAYMENT_DEFAULT_CURRENCY", "ETB"),

			// 供应商 API 超时时间，单位：秒
			"timeout": config.Env("PAYMENT_TIMEOUT", 10),

			// Chapa 配置
			"chapa": map[string]interface{}{
				"base_url":       config.Env("CHAPA_BASE_URL", "https://api.chapa.co/v1"),
				"secret_key":     config.Env("CHAPA_SECRET_KEY", ""),
				"webhook_secret": config.Env("CHAPA_WEBHOOK_SECRET", ""),
			},

			// Flutterwave 配置
			"flutterwave": map[string]interface{}{
				"base_url":       config.Env("FLW_BASE_URL", "https://api.flutterwave.com/v3"),
				"secret_key":     config.Env("FLW_SECRET_KEY", ""),
				"webhook_secret": config.Env("FLW_WEBHOOK_SECRET", ""),
			},
		}
	})
}
