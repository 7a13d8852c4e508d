package basketevents

const (
	TopicName               = "basket"
	itemAddedName           = TopicName + ".item.added"
	itemQuantityUpdatedName = TopicName + ".item.quantity-updated"
	itemRemovedName         = TopicName + ".item.removed"
)

// ItemAdded is emitted for new items and for quantities merged into an existing item.
// BasketVersion keeps two identical additions apart.
type ItemAdded struct {
	BasketUID     string
	BasketVersion int
	UserUID       string
	BasketItemUID string
	ProductUID    string
	Quantity      int
}

func (e ItemAdded) GetEventTypeName() string {
	return itemAddedName
}

func (e ItemAdded) GetAggregateName() string {
	return e.BasketUID
}

type ItemQuantityUpdated struct {
	BasketUID     string
	BasketVersion int
	UserUID       string
	BasketItemUID string
	ProductUID    string
	OldQuantity   int
	NewQuantity   int
}

func (e ItemQuantityUpdated) GetEventTypeName() string {
	return itemQuantityUpdatedName
}

func (e ItemQuantityUpdated) GetAggregateName() string {
	return e.BasketUID
}

type ItemRemoved struct {
	BasketUID     string
	BasketVersion int
	UserUID       string
	BasketItemUID string
	ProductUID    string
	Quantity      int
}

func (e ItemRemoved) GetEventTypeName() string {
	return itemRemovedName
}

func (e ItemRemoved) GetAggregateName() string {
	return e.BasketUID
}
