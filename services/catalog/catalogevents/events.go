package catalogevents

import "time"

const (
	TopicName              = "catalog"
	productStockLowName    = TopicName + ".stock.low"
	productDeactivatedName = TopicName + ".product.deactivated"
)

// ProductStockLow is emitted when stock drops to or below the restock threshold.
type ProductStockLow struct {
	ProductUID       string
	Name             string
	Stock            int
	RestockThreshold int
	Timestamp        time.Time
}

func (e ProductStockLow) GetEventTypeName() string {
	return productStockLowName
}

func (e ProductStockLow) GetAggregateName() string {
	return e.ProductUID
}

type ProductDeactivated struct {
	ProductUID string
	Name       string
	Timestamp  time.Time
}

func (e ProductDeactivated) GetEventTypeName() string {
	return productDeactivatedName
}

func (e ProductDeactivated) GetAggregateName() string {
	return e.ProductUID
}
