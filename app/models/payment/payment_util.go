package payment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Status 支付状态
type Status string

const (
	StatusPending  Status = "pending"  // 待支付
	StatusSuccess  Status = "success"  // 支付成功
	StatusFailed   Status = "failed"   // 支付失败
	StatusRefunded Status = "refunded" // 已退款，仅管理员触发
)

// JSON 自定义JSON类型，存放供应商原始响应
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	return json.Unmarshal(bytes, j)
}

// IsTerminal 判断状态是否为终态
// failed 和 refunded 对本引擎是终态；success 仅可被管理员转为 refunded
func IsTerminal(s Status) bool {
	return s == StatusFailed || s == StatusRefunded
}

// CanTransition 校验状态机迁移
// pending -> success / failed；success -> refunded（管理员）
// 同状态重复写入视为合法（幂等重放）
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusSuccess || to == StatusFailed
	case StatusSuccess:
		return to == StatusRefunded
	default:
		return false
	}
}

// IsSuccess 检查支付是否成功
func (p *Payment) IsSuccess() bool {
	return p.Status == string(StatusSuccess)
}

// IsPending 检查是否待支付
func (p *Payment) IsPending() bool {
	return p.Status == string(StatusPending)
}

// IsRefunded 检查是否已退款
func (p *Payment) IsRefunded() bool {
	return p.Status == string(StatusRefunded)
}
