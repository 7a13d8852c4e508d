package basket

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/shopspring/decimal"
)

// Basket is stored under the uid of its owner, so a user never has more than one.
type Basket struct {
	UID          string
	UserUID      string
	Items        []BasketItem    `datastore:"-"`
	TotalPrice   decimal.Decimal `datastore:"-"`
	Currency     string
	Version      int
	CreatedAt    time.Time
	LastModified time.Time
}

type BasketItem struct {
	UID         string
	ProductUID  string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func (i BasketItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (b Basket) itemIndex(basketItemUID string) int {
	for idx, item := range b.Items {
		if item.UID == basketItemUID {
			return idx
		}
	}
	return -1
}

func (b Basket) productIndex(productUID string) int {
	for idx, item := range b.Items {
		if item.ProductUID == productUID {
			return idx
		}
	}
	return -1
}

func (b *Basket) removeItem(idx int) {
	b.Items = append(b.Items[:idx], b.Items[idx+1:]...)
}

// processedRequest remembers a client supplied idempotency key together with the
// request it was first used for. Records older than requestRetention are purged.
type processedRequest struct {
	UID         string
	UserUID     string
	Key         string
	Operation   string
	Fingerprint string
	CreatedAt   time.Time
}

const requestRetention = 24 * time.Hour

func processedRequestUID(userUID string, key string) string {
	return userUID + "/" + key
}

// requestFingerprint identifies the arguments of a mutation.
func requestFingerprint(operation string, args ...any) string {
	parts := []string{operation}
	for _, arg := range args {
		parts = append(parts, fmt.Sprint(arg))
	}
	return strings.Join(parts, "|")
}

func (r processedRequest) expired(now time.Time) bool {
	return r.CreatedAt.Before(now.Add(-requestRetention))
}

const (
	itemsProperty      = "Items"
	totalPriceProperty = "TotalPrice"
)

func (b *Basket) Load(props []datastore.Property) error {
	rest := make([]datastore.Property, 0, len(props))
	for _, prop := range props {
		switch prop.Name {
		case totalPriceProperty:
			total, err := loadDecimal(prop)
			if err != nil {
				return err
			}
			b.TotalPrice = total

		case itemsProperty:
			values, ok := prop.Value.([]interface{})
			if !ok {
				return fmt.Errorf("basket property %s has unexpected type %T", prop.Name, prop.Value)
			}
			b.Items = make([]BasketItem, 0, len(values))
			for _, v := range values {
				entity, ok := v.(*datastore.Entity)
				if !ok {
					return fmt.Errorf("basket item has unexpected type %T", v)
				}
				item, err := loadItem(entity)
				if err != nil {
					return err
				}
				b.Items = append(b.Items, item)
			}

		default:
			rest = append(rest, prop)
		}
	}

	return datastore.LoadStruct(b, rest)
}

func (b *Basket) Save() ([]datastore.Property, error) {
	props, err := datastore.SaveStruct(b)
	if err != nil {
		return nil, err
	}

	items := make([]interface{}, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, &datastore.Entity{
			Properties: []datastore.Property{
				{Name: "UID", Value: item.UID},
				{Name: "ProductUID", Value: item.ProductUID},
				{Name: "ProductName", Value: item.ProductName, NoIndex: true},
				{Name: "UnitPrice", Value: item.UnitPrice.String(), NoIndex: true},
				{Name: "Quantity", Value: int64(item.Quantity), NoIndex: true},
			},
		})
	}

	return append(props,
		datastore.Property{Name: itemsProperty, Value: items, NoIndex: true},
		datastore.Property{Name: totalPriceProperty, Value: b.TotalPrice.String(), NoIndex: true},
	), nil
}

func loadItem(entity *datastore.Entity) (BasketItem, error) {
	item := BasketItem{}
	for _, prop := range entity.Properties {
		switch prop.Name {
		case "UID":
			item.UID, _ = prop.Value.(string)
		case "ProductUID":
			item.ProductUID, _ = prop.Value.(string)
		case "ProductName":
			item.ProductName, _ = prop.Value.(string)
		case "UnitPrice":
			price, err := loadDecimal(prop)
			if err != nil {
				return item, err
			}
			item.UnitPrice = price
		case "Quantity":
			quantity, ok := prop.Value.(int64)
			if !ok {
				return item, fmt.Errorf("basket item property Quantity has unexpected type %T", prop.Value)
			}
			item.Quantity = int(quantity)
		}
	}
	return item, nil
}

func loadDecimal(prop datastore.Property) (decimal.Decimal, error) {
	asString, ok := prop.Value.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("property %s has unexpected type %T", prop.Name, prop.Value)
	}
	value, err := decimal.NewFromString(asString)
	if err != nil {
		return decimal.Zero, fmt.Errorf("property %s: %s", prop.Name, err)
	}
	return value, nil
}
