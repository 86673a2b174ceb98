package bootstrap

import (
	"time"

	"gebeya/pkg/config"
	"gebeya/pkg/logger"
	"gebeya/pkg/paygate"
	"gebeya/pkg/paygate/chapa"
	"gebeya/pkg/paygate/flutterwave"
)

// SetupPaygate 组装支付适配器注册表
// 供应商密钥缺失只告警不阻断启动：对账和查询端点不依赖建单能力
func SetupPaygate() *paygate.Registry {
	registry := paygate.NewRegistry()
	timeout := time.Duration(config.GetInt("payment.timeout", 10)) * time.Second

	chapaCfg := config.GetStringMapString("payment.chapa")
	if chapaCfg["secret_key"] == "" {
		logger.WarnString("Paygate", "Setup", "CHAPA_SECRET_KEY 未配置")
	}
	registry.Register(chapa.New(chapa.Config{
		BaseURL:       chapaCfg["base_url"],
		SecretKey:     chapaCfg["secret_key"],
		WebhookSecret: chapaCfg["webhook_secret"],
		Timeout:       timeout,
	}))

	flwCfg := config.GetStringMapString("payment.flutterwave")
	if flwCfg["secret_key"] == "" {
		logger.WarnString("Paygate", "Setup", "FLW_SECRET_KEY 未配置")
	}
	registry.Register(flutterwave.New(flutterwave.Config{
		BaseURL:       flwCfg["base_url"],
		SecretKey:     flwCfg["secret_key"],
		WebhookSecret: flwCfg["webhook_secret"],
		Timeout:       timeout,
	}))

	logger.InfoString("Paygate", "Setup", "支付适配器注册完成")
	return registry
}
