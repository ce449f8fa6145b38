package models

import "time"

type PaymentMethodCode string

const (
	PaymentCash        PaymentMethodCode = "cash"
	PaymentPOS         PaymentMethodCode = "pos"
	PaymentTransfer    PaymentMethodCode = "transfer"
	PaymentDeliveryApp PaymentMethodCode = "delivery_app"
)

type PaymentMethod struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Code      PaymentMethodCode `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Name      string            `gorm:"size:100;not null" json:"name"`
	Active    bool              `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
