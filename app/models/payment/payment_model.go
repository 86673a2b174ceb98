package payment

import (
	"time"
)

// Payment 支付记录模型，对账的唯一权威实体
// provider + provider_reference 在创建后不可变更，provider_reference 全局唯一
type Payment struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider          string     `gorm:"type:varchar(20);index" json:"provider"`
	ProviderReference string     `gorm:"type:varchar(64);uniqueIndex" json:"provider_reference"`
	Amount            int64      `gorm:"" json:"amount"` // 最小货币单位
	Currency          string     `gorm:"type:varchar(8)" json:"currency"`
	Status            string     `gorm:"type:varchar(20);index" json:"status"`
	ListingID         string     `gorm:"type:varchar(36);index" json:"listing_id,omitempty"`
	BuyerID           string     `gorm:"type:varchar(36);index" json:"buyer_id,omitempty"`
	SellerID          string     `gorm:"type:varchar(36);index" json:"seller_id,omitempty"`
	ProviderMeta      JSON       `gorm:"type:json" json:"provider_meta"`
	PayAt             *time.Time `gorm:"" json:"pay_at"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"" json:"updated_at"`
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
