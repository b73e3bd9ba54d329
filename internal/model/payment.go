package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment 支付记录表 —— 按渠道侧标识建立的二级索引
//
// 渠道回调时回传的标识不稳定：有的回传发起时给它的 checkout_id，
// 有的回传自己生成的 invoice_id，有的只回传 api_ref。
// 这张表把发起支付时拿到的所有渠道标识都落库，供回调匹配链逐个尝试。
type Payment struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo           string          `gorm:"type:varchar(64);index;not null" json:"order_no"`
	Provider          string          `gorm:"type:varchar(32);index;not null" json:"provider"`
	InvoiceID         string          `gorm:"type:varchar(128);index" json:"invoice_id"`
	ProviderReference string          `gorm:"type:varchar(128);index" json:"provider_reference"` // checkout_id / collection_id
	APIRef            string          `gorm:"type:varchar(256);index" json:"api_ref"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status            string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Metadata          datatypes.JSON  `json:"metadata"` // 渠道原始响应，排障用
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}
