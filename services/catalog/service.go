package catalog

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
	"github.com/MarcGrol/flowershop/services/catalog/catalogevents"
)

var (
	ErrProductNotFound  = myerrors.NewKindError("ProductNotFound", "product not found")
	ErrNotEnoughStock   = myerrors.NewKindError("NotEnoughStock", "not enough stock")
	ErrDuplicateProduct = myerrors.NewKindError("DuplicateProduct", "product already exists")
)

type service struct {
	productStore mystore.Store[Product]
	publisher    mypublisher.Publisher
	nower        mytime.Nower
	uuider       myuuid.UUIDer
	logger       mylog.Logger
	tracer       trace.Tracer
}

// Use dependency injection to isolate the infrastructure and easy testing
func NewService(store mystore.Store[Product], nower mytime.Nower, uuider myuuid.UUIDer, pub mypublisher.Publisher) *service {
	return &service{
		productStore: store,
		publisher:    pub,
		nower:        nower,
		uuider:       uuider,
		logger:       mylog.New("catalog"),
		tracer:       otel.Tracer("github.com/MarcGrol/flowershop/services/catalog"),
	}
}

func (s *service) CreateTopics(c context.Context) error {
	err := s.publisher.CreateTopic(c, catalogevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", catalogevents.TopicName, err)
	}
	return nil
}
