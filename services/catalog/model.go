package catalog

import (
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/shopspring/decimal"
)

const defaultRestockThreshold = 5

type Product struct {
	UID              string
	Name             string
	Description      string `datastore:",noindex"`
	Category         string
	Image            string          `datastore:",noindex"`
	SalePrice        decimal.Decimal `datastore:"-"`
	Stock            int
	RestockThreshold int
	Inactive         bool
	CreatedAt        time.Time
	LastModified     time.Time
}

func (p Product) IsLowOnStock() bool {
	return p.Stock <= p.RestockThreshold
}

func (p Product) IsAvailable() bool {
	return !p.Inactive && p.Stock > 0
}

// Decimals are stored as their exact string representation.
const salePriceProperty = "SalePrice"

func (p *Product) Load(props []datastore.Property) error {
	rest := make([]datastore.Property, 0, len(props))
	for _, prop := range props {
		if prop.Name != salePriceProperty {
			rest = append(rest, prop)
			continue
		}

		asString, ok := prop.Value.(string)
		if !ok {
			return fmt.Errorf("product property %s has unexpected type %T", prop.Name, prop.Value)
		}
		price, err := decimal.NewFromString(asString)
		if err != nil {
			return fmt.Errorf("product property %s: %s", prop.Name, err)
		}
		p.SalePrice = price
	}

	return datastore.LoadStruct(p, rest)
}

func (p *Product) Save() ([]datastore.Property, error) {
	props, err := datastore.SaveStruct(p)
	if err != nil {
		return nil, err
	}

	return append(props, datastore.Property{
		Name:    salePriceProperty,
		Value:   p.SalePrice.String(),
		NoIndex: true,
	}), nil
}
