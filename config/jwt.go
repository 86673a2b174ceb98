package config

import "gebeya/pkg/config"

func init() {
	config.Add("jwt", func() map[string]interface{} {
		return map[string]interface{}{

			// HS256 签名密钥，务必通过环境变量下发
			"secret": config.Env("JWT_SECRET", ""),

			// 过期时间，单位：分钟
			"expire_time": config.Env("JWT_EXPIRE_TIME", 24*60),

			// 签发者
			"issuer": config.Env("JWT_ISSUER", "gebeya-api"),
		}
	})
}
