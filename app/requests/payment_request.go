package requests

import (
	"github.com/gin-gonic/gin"
	"github.com/thedevsaddam/govalidator"
)

// PaymentInitializeRequest 发起支付请求，供应商名取自路由参数
// Amount 为主货币单位（如 100.50 ETB），入库前转换为最小单位
type PaymentInitializeRequest struct {
	Amount       float64 `json:"amount" valid:"amount"`
	Currency     string  `json:"currency" valid:"currency"`
	PayerContact string  `json:"payer_contact" valid:"payer_contact"`
	ReturnURL    string  `json:"return_url" valid:"return_url"`
	ListingID    string  `json:"listing_id" valid:"listing_id"`
	BuyerID      string  `json:"buyer_id" valid:"buyer_id"`
	SellerID     string  `json:"seller_id" valid:"seller_id"`
}

// PaymentInitialize 验证表单
func PaymentInitialize(data interface{}, c *gin.Context) map[string][]string {
	rules := govalidator.MapData{
		"amount":        []string{"required", "numeric_between:0.01,10000000"},
		"currency":      []string{"alpha", "between:3,8"},
		"payer_contact": []string{"required", "between:3,120"},
		"return_url":    []string{"url"},
		"listing_id":    []string{"max:36"},
		"buyer_id":      []string{"max:36"},
		"seller_id":     []string{"max:36"},
	}

	messages := govalidator.MapData{
		"amount": []string{
			"required:金额为必填项",
			"numeric_between:金额必须大于 0",
		},
		"currency": []string{
			"alpha:货币代码格式错误",
			"between:货币代码长度为 3~8 位",
		},
		"payer_contact": []string{
			"required:付款人联系方式为必填项",
			"between:付款人联系方式长度为 3~120 位",
		},
		"return_url": []string{
			"url:回跳地址格式错误",
		},
	}

	return validate(data, rules, messages)
}
