package basket

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MarcGrol/flowershop/lib/myerrors"
	"github.com/MarcGrol/flowershop/lib/mylog"
	"github.com/MarcGrol/flowershop/lib/mystore"
	"github.com/MarcGrol/flowershop/services/basket/basketevents"
)

const (
	operationAdd    = "add"
	operationUpdate = "update"
	operationRemove = "remove"
)

// addToBasket reserves quantity of a product for the basket of the user. The
// basket is created on first use and items of the same product are merged.
func (s *service) addToBasket(c context.Context, userUID string, productUID string, quantity int, requestKey string) (Basket, error) {
	c, span := s.tracer.Start(c, "basket.AddToBasket", trace.WithAttributes(
		attribute.String("user.uid", userUID),
		attribute.String("product.uid", productUID),
		attribute.Int("quantity", quantity)))
	defer span.End()

	s.logger.Log(c, userUID, mylog.SeverityInfo, "Add %d of product %s to basket of user %s", quantity, productUID, userUID)

	if quantity < 1 {
		return Basket{}, failed(span, myerrors.NewInvalidInputError(fmt.Errorf("%w, got %d", ErrInvalidQuantity, quantity)))
	}

	fingerprint := requestFingerprint(operationAdd, productUID, quantity)

	var basket Basket
	err := s.basketStore.RunInTransaction(c, func(c context.Context) error {
		var replayed bool
		var err error
		basket, replayed, err = s.replay(c, userUID, requestKey, fingerprint)
		if err != nil || replayed {
			return err
		}

		product, err := s.catalog.GetProduct(c, productUID)
		if err != nil {
			return err
		}
		if product.Inactive {
			return myerrors.NewNotFoundError(fmt.Errorf("%w: %s is no longer sold", ErrProductNotFound, productUID))
		}
		if product.Stock < quantity {
			return myerrors.NewInvalidInputError(fmt.Errorf("%w: product %s has %d available, %d requested", ErrNotEnoughStock, productUID, product.Stock, quantity))
		}

		basket, err = s.getOrCreateBasket(c, userUID)
		if err != nil {
			return err
		}

		idx := basket.productIndex(productUID)
		if idx < 0 {
			basket.Items = append(basket.Items, BasketItem{
				UID:        s.uuider.Create(),
				ProductUID: productUID,
			})
			idx = len(basket.Items) - 1
		}
		basket.Items[idx].Quantity += quantity

		_, err = s.catalog.AdjustStock(c, productUID, -quantity)
		if err != nil {
			return err
		}

		err = s.save(c, &basket)
		if err != nil {
			return err
		}

		err = s.publisher.Publish(c, basketevents.TopicName, basketevents.ItemAdded{
			BasketUID:     basket.UID,
			BasketVersion: basket.Version,
			UserUID:       userUID,
			BasketItemUID: basket.Items[idx].UID,
			ProductUID:    productUID,
			Quantity:      quantity,
		})
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return s.remember(c, userUID, requestKey, operationAdd, fingerprint)
	})
	if err != nil {
		return Basket{}, failed(span, err)
	}

	span.SetAttributes(attribute.String("basket.uid", basket.UID))

	return basket, nil
}

// updateItemQuantity sets the quantity of an item and moves the difference from or back to stock.
func (s *service) updateItemQuantity(c context.Context, userUID string, basketItemUID string, newQuantity int, requestKey string) (Basket, error) {
	c, span := s.tracer.Start(c, "basket.UpdateItemQuantity", trace.WithAttributes(
		attribute.String("user.uid", userUID),
		attribute.String("basket.item.uid", basketItemUID),
		attribute.Int("quantity", newQuantity)))
	defer span.End()

	s.logger.Log(c, userUID, mylog.SeverityInfo, "Set quantity of item %s in basket of user %s to %d", basketItemUID, userUID, newQuantity)

	if newQuantity < 1 {
		return Basket{}, failed(span, myerrors.NewInvalidInputError(fmt.Errorf("%w, got %d", ErrInvalidQuantity, newQuantity)))
	}

	fingerprint := requestFingerprint(operationUpdate, basketItemUID, newQuantity)

	var basket Basket
	err := s.basketStore.RunInTransaction(c, func(c context.Context) error {
		var replayed bool
		var err error
		basket, replayed, err = s.replay(c, userUID, requestKey, fingerprint)
		if err != nil || replayed {
			return err
		}

		basket, err = s.loadBasket(c, userUID)
		if err != nil {
			return err
		}

		idx := basket.itemIndex(basketItemUID)
		if idx < 0 {
			return myerrors.NewNotFoundError(fmt.Errorf("%w: %s", ErrBasketItemNotFound, basketItemUID))
		}
		item := basket.Items[idx]

		delta := newQuantity - item.Quantity
		if delta == 0 {
			return nil
		}

		if delta > 0 {
			product, err := s.catalog.GetProduct(c, item.ProductUID)
			if err != nil {
				return err
			}
			if product.Inactive {
				return myerrors.NewNotFoundError(fmt.Errorf("%w: %s is no longer sold", ErrProductNotFound, item.ProductUID))
			}
			if product.Stock < delta {
				return myerrors.NewInvalidInputError(fmt.Errorf("%w: product %s has %d available, %d more requested", ErrNotEnoughStock, item.ProductUID, product.Stock, delta))
			}
		}

		_, err = s.catalog.AdjustStock(c, item.ProductUID, -delta)
		if err != nil {
			return err
		}

		basket.Items[idx].Quantity = newQuantity

		err = s.save(c, &basket)
		if err != nil {
			return err
		}

		err = s.publisher.Publish(c, basketevents.TopicName, basketevents.ItemQuantityUpdated{
			BasketUID:     basket.UID,
			BasketVersion: basket.Version,
			UserUID:       userUID,
			BasketItemUID: item.UID,
			ProductUID:    item.ProductUID,
			OldQuantity:   item.Quantity,
			NewQuantity:   newQuantity,
		})
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return s.remember(c, userUID, requestKey, operationUpdate, fingerprint)
	})
	if err != nil {
		return Basket{}, failed(span, err)
	}

	return basket, nil
}

// removeItem drops an item from the basket and returns its quantity to stock.
// The basket itself remains, also when it becomes empty.
func (s *service) removeItem(c context.Context, userUID string, basketItemUID string, requestKey string) (Basket, error) {
	c, span := s.tracer.Start(c, "basket.RemoveItem", trace.WithAttributes(
		attribute.String("user.uid", userUID),
		attribute.String("basket.item.uid", basketItemUID)))
	defer span.End()

	s.logger.Log(c, userUID, mylog.SeverityInfo, "Remove item %s from basket of user %s", basketItemUID, userUID)

	fingerprint := requestFingerprint(operationRemove, basketItemUID)

	var basket Basket
	err := s.basketStore.RunInTransaction(c, func(c context.Context) error {
		var replayed bool
		var err error
		basket, replayed, err = s.replay(c, userUID, requestKey, fingerprint)
		if err != nil || replayed {
			return err
		}

		basket, err = s.loadBasket(c, userUID)
		if err != nil {
			return err
		}

		idx := basket.itemIndex(basketItemUID)
		if idx < 0 {
			return myerrors.NewNotFoundError(fmt.Errorf("%w: %s", ErrBasketItemNotFound, basketItemUID))
		}
		item := basket.Items[idx]

		_, err = s.catalog.AdjustStock(c, item.ProductUID, item.Quantity)
		if err != nil {
			return err
		}

		basket.removeItem(idx)

		err = s.save(c, &basket)
		if err != nil {
			return err
		}

		err = s.publisher.Publish(c, basketevents.TopicName, basketevents.ItemRemoved{
			BasketUID:     basket.UID,
			BasketVersion: basket.Version,
			UserUID:       userUID,
			BasketItemUID: item.UID,
			ProductUID:    item.ProductUID,
			Quantity:      item.Quantity,
		})
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return s.remember(c, userUID, requestKey, operationRemove, fingerprint)
	})
	if err != nil {
		return Basket{}, failed(span, err)
	}

	return basket, nil
}

// getBasket returns the basket as left by its last mutation. It never creates one.
func (s *service) getBasket(c context.Context, userUID string) (Basket, error) {
	c, span := s.tracer.Start(c, "basket.GetBasket", trace.WithAttributes(attribute.String("user.uid", userUID)))
	defer span.End()

	s.logger.Log(c, userUID, mylog.SeverityInfo, "Fetch basket of user %s", userUID)

	basket, err := s.loadBasket(c, userUID)
	if err != nil {
		return Basket{}, failed(span, err)
	}

	return basket, nil
}

func (s *service) loadBasket(c context.Context, userUID string) (Basket, error) {
	basket, found, err := s.basketStore.Get(c, userUID)
	if err != nil {
		return Basket{}, myerrors.NewInternalError(err)
	}
	if !found {
		return Basket{}, myerrors.NewNotFoundError(fmt.Errorf("%w for user %s", ErrBasketNotFound, userUID))
	}
	return basket, nil
}

func (s *service) getOrCreateBasket(c context.Context, userUID string) (Basket, error) {
	basket, found, err := s.basketStore.Get(c, userUID)
	if err != nil {
		return Basket{}, myerrors.NewInternalError(err)
	}
	if found {
		return basket, nil
	}

	s.logger.Log(c, userUID, mylog.SeverityInfo, "Create basket for user %s", userUID)

	return Basket{
		UID:        s.uuider.Create(),
		UserUID:    userUID,
		Items:      []BasketItem{},
		TotalPrice: decimal.Zero,
		Currency:   s.currency,
		CreatedAt:  s.nower.Now(),
	}, nil
}

// save prices the basket and persists it as part of the transaction in c.
func (s *service) save(c context.Context, basket *Basket) error {
	err := s.refreshPrices(c, basket)
	if err != nil {
		return err
	}

	basket.Version++
	basket.LastModified = s.nower.Now()

	err = s.basketStore.Put(c, basket.UserUID, *basket)
	if err != nil {
		return myerrors.NewInternalError(err)
	}
	return nil
}

// refreshPrices copies current product names and prices onto the items and recomputes the
// cached total. Items of products that vanished keep their last known price.
func (s *service) refreshPrices(c context.Context, basket *Basket) error {
	total := decimal.Zero
	for idx := range basket.Items {
		item := &basket.Items[idx]

		product, err := s.catalog.GetProduct(c, item.ProductUID)
		if err != nil && !errors.Is(err, ErrProductNotFound) {
			return err
		}
		if err == nil {
			item.ProductName = product.Name
			item.UnitPrice = product.SalePrice
		}

		total = total.Add(item.TotalPrice())
	}
	basket.TotalPrice = total

	return nil
}

// replay reports whether requestKey was processed before and, if so, returns the current basket.
// A key that comes back with other arguments is rejected. Expired keys are forgotten.
func (s *service) replay(c context.Context, userUID string, requestKey string, fingerprint string) (Basket, bool, error) {
	if requestKey == "" {
		return Basket{}, false, nil
	}

	request, found, err := s.requestStore.Get(c, processedRequestUID(userUID, requestKey))
	if err != nil {
		return Basket{}, false, myerrors.NewInternalError(err)
	}
	if !found || request.expired(s.nower.Now()) {
		return Basket{}, false, nil
	}
	if request.Fingerprint != fingerprint {
		return Basket{}, false, myerrors.NewConflictError(fmt.Errorf("%w: key %s was used for %s", ErrRequestKeyReused, requestKey, request.Operation))
	}

	s.logger.Log(c, userUID, mylog.SeverityInfo, "Request %s (%s) already processed", requestKey, request.Operation)

	basket, err := s.loadBasket(c, userUID)
	if err != nil {
		return Basket{}, false, err
	}

	return basket, true, nil
}

// remember records requestKey and purges the expired keys of the same user.
func (s *service) remember(c context.Context, userUID string, requestKey string, operation string, fingerprint string) error {
	if requestKey == "" {
		return nil
	}

	now := s.nower.Now()

	expired, err := s.requestStore.Query(c, []mystore.Filter{
		{Field: "UserUID", Compare: "=", Value: userUID},
		{Field: "CreatedAt", Compare: "<", Value: now.Add(-requestRetention)},
	}, "")
	if err != nil {
		return myerrors.NewInternalError(err)
	}
	for _, request := range expired {
		err = s.requestStore.Delete(c, request.UID)
		if err != nil {
			return myerrors.NewInternalError(err)
		}
	}

	uid := processedRequestUID(userUID, requestKey)
	err = s.requestStore.Put(c, uid, processedRequest{
		UID:         uid,
		UserUID:     userUID,
		Key:         requestKey,
		Operation:   operation,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	})
	if err != nil {
		return myerrors.NewInternalError(err)
	}
	return nil
}

func failed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Warmup touches the basket store so its connection is established.
func (s *service) Warmup(c context.Context) error {
	_, _, err := s.basketStore.Get(c, "_warmup")
	if err != nil {
		return myerrors.NewInternalError(err)
	}
	return nil
}
