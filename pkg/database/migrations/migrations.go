package migrations

import (
	"gebeya/app/models/payment"
	"gebeya/app/models/user"
)

// RegisterTables 返回需要迁移的表的模型列表
func RegisterTables() []interface{} {
	return []interface{}{
		&user.User{},
		&payment.Payment{},
	}
}
