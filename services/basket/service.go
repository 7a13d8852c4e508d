package basket

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MarcGrol/flowershop/lib/myerrors"
	"github.com/MarcGrol/flowershop/lib/mylog"
	"github.com/MarcGrol/flowershop/lib/mypublisher"
	"github.com/MarcGrol/flowershop/lib/mystore"
	"github.com/MarcGrol/flowershop/lib/mytime"
	"github.com/MarcGrol/flowershop/lib/myuuid"
	"github.com/MarcGrol/flowershop/services/basket/basketevents"
	"github.com/MarcGrol/flowershop/services/catalog"
)

var (
	ErrProductNotFound    = catalog.ErrProductNotFound
	ErrNotEnoughStock     = catalog.ErrNotEnoughStock
	ErrInvalidQuantity    = myerrors.NewKindError("InvalidQuantity", "quantity must be at least 1")
	ErrBasketNotFound     = myerrors.NewKindError("BasketNotFound", "basket not found")
	ErrBasketItemNotFound = myerrors.NewKindError("BasketItemNotFound", "basket item not found")
	ErrRequestKeyReused   = myerrors.NewKindError("IdempotencyKeyReused", "idempotency key was used for another request")
)

// Catalog is the part of the product catalog the basket depends on.
// Both operations take part in the transaction carried by c.
type Catalog interface {
	GetProduct(c context.Context, productUID string) (catalog.Product, error)
	AdjustStock(c context.Context, productUID string, delta int) (catalog.Product, error)
}

type service struct {
	basketStore  mystore.Store[Basket]
	requestStore mystore.Store[processedRequest]
	catalog      Catalog
	publisher    mypublisher.Publisher
	nower        mytime.Nower
	uuider       myuuid.UUIDer
	logger       mylog.Logger
	tracer       trace.Tracer
	currency     string
}

// Use dependency injection to isolate the infrastructure and easy testing
func NewService(basketStore mystore.Store[Basket], requestStore mystore.Store[processedRequest], catalog Catalog, nower mytime.Nower, uuider myuuid.UUIDer, pub mypublisher.Publisher, currency string) *service {
	return &service{
		basketStore:  basketStore,
		requestStore: requestStore,
		catalog:      catalog,
		publisher:    pub,
		nower:        nower,
		uuider:       uuider,
		logger:       mylog.New("basket"),
		tracer:       otel.Tracer("github.com/MarcGrol/flowershop/services/basket"),
		currency:     currency,
	}
}

// NewStores creates the stores the basket service persists to.
func NewStores(c context.Context) (mystore.Store[Basket], mystore.Store[processedRequest], func(), error) {
	basketStore, basketCleanup, err := mystore.New[Basket](c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error creating basket store: %s", err)
	}

	requestStore, requestCleanup, err := mystore.New[processedRequest](c)
	if err != nil {
		basketCleanup()
		return nil, nil, nil, fmt.Errorf("error creating request store: %s", err)
	}

	return basketStore, requestStore, func() {
		requestCleanup()
		basketCleanup()
	}, nil
}

func (s *service) CreateTopics(c context.Context) error {
	err := s.publisher.CreateTopic(c, basketevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", basketevents.TopicName, err)
	}
	return nil
}
