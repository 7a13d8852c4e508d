package basket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MarcGrol/flowershop/lib/myerrors"
	"github.com/MarcGrol/flowershop/lib/mypublisher"
	"github.com/MarcGrol/flowershop/lib/mystore"
	"github.com/MarcGrol/flowershop/lib/mytime"
	"github.com/MarcGrol/flowershop/lib/myuuid"
	"github.com/MarcGrol/flowershop/services/basket/basketevents"
	"github.com/MarcGrol/flowershop/services/catalog"
	"github.com/MarcGrol/flowershop/services/catalog/catalogevents"
)

const userUID = "user-1"

var (
	daisies = catalog.Product{UID: "p-daisies", Name: "Daisies", Category: "bouquet", SalePrice: decimal.RequireFromString("5.00"), Stock: 10, RestockThreshold: 1, CreatedAt: mytime.ExampleTime}
	orchid  = catalog.Product{UID: "p-orchid", Name: "Orchid", Category: "plant", SalePrice: decimal.RequireFromString("10.00"), Stock: 5, RestockThreshold: 1, CreatedAt: mytime.ExampleTime}
	tulips  = catalog.Product{UID: "p-tulips", Name: "Tulips", Category: "bouquet", SalePrice: decimal.RequireFromString("7.50"), Stock: 2, RestockThreshold: 0, CreatedAt: mytime.ExampleTime}
	lilies  = catalog.Product{UID: "p-lilies", Name: "Lilies", Category: "bouquet", SalePrice: decimal.RequireFromString("9.99"), Stock: 8, RestockThreshold: 1, Inactive: true, CreatedAt: mytime.ExampleTime}
)

type fixture struct {
	c            context.Context
	sut          *service
	productStore mystore.Store[catalog.Product]
	basketStore  mystore.Store[Basket]
	requestStore mystore.Store[processedRequest]
	uuider       *myuuid.MockUUIDer
	publisher    *mypublisher.MockPublisher
}

// setupService wires the basket to a real catalog backed by in-memory stores.
func setupService(t *testing.T, ctrl *gomock.Controller) fixture {
	c := context.TODO()

	productStore, _, err := mystore.NewInMemoryStore[catalog.Product](c)
	require.NoError(t, err)
	basketStore, _, err := mystore.NewInMemoryStore[Basket](c)
	require.NoError(t, err)
	requestStore, _, err := mystore.NewInMemoryStore[processedRequest](c)
	require.NoError(t, err)

	for _, p := range []catalog.Product{daisies, orchid, tulips, lilies} {
		require.NoError(t, productStore.Put(c, p.UID, p))
	}

	nower := mytime.NewMockNower(ctrl)
	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
	uuider := myuuid.NewMockUUIDer(ctrl)

	catalogPublisher := mypublisher.NewMockPublisher(ctrl)
	catalogPublisher.EXPECT().Publish(gomock.Any(), catalogevents.TopicName, gomock.Any()).Return(nil).AnyTimes()
	catalogService := catalog.NewService(productStore, nower, myuuid.RealUUIDer{}, catalogPublisher)

	publisher := mypublisher.NewMockPublisher(ctrl)

	return fixture{
		c:            c,
		sut:          NewService(basketStore, requestStore, catalogService, nower, uuider, publisher, "EUR"),
		productStore: productStore,
		basketStore:  basketStore,
		requestStore: requestStore,
		uuider:       uuider,
		publisher:    publisher,
	}
}

func (f fixture) stockOf(t *testing.T, productUID string) int {
	product, found, err := f.productStore.Get(f.c, productUID)
	require.NoError(t, err)
	require.True(t, found)
	return product.Stock
}

// givenItem puts quantity of product into the basket of the user under itemUID.
func (f fixture) givenItem(t *testing.T, itemUID string, product catalog.Product, quantity int) Basket {
	f.uuider.EXPECT().Create().Return("basket-1").MaxTimes(1)
	f.uuider.EXPECT().Create().Return(itemUID)
	f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

	basket, err := f.sut.addToBasket(f.c, userUID, product.UID, quantity, "")
	require.NoError(t, err)
	return basket
}

func TestAddToBasket(t *testing.T) {
	t.Run("First add creates basket and reserves stock", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		// given
		gomock.InOrder(
			f.uuider.EXPECT().Create().Return("basket-1"),
			f.uuider.EXPECT().Create().Return("item-1"),
		)
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, basketevents.ItemAdded{
			BasketUID:     "basket-1",
			BasketVersion: 1,
			UserUID:       userUID,
			BasketItemUID: "item-1",
			ProductUID:    daisies.UID,
			Quantity:      3,
		}).Return(nil)

		// when
		basket, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 3, "")

		// then
		require.NoError(t, err)
		require.Len(t, basket.Items, 1)
		assert.Equal(t, 3, basket.Items[0].Quantity)
		assert.Equal(t, "Daisies", basket.Items[0].ProductName)
		assert.Equal(t, "15.00", basket.TotalPrice.StringFixed(2))
		assert.Equal(t, "EUR", basket.Currency)
		assert.Equal(t, 7, f.stockOf(t, daisies.UID))

		stored, found, err := f.basketStore.Get(f.c, userUID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "15.00", stored.TotalPrice.StringFixed(2))
	})

	t.Run("Not enough stock changes nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		// when
		_, err := f.sut.addToBasket(f.c, userUID, tulips.UID, 5, "")

		// then
		assert.True(t, errors.Is(err, ErrNotEnoughStock))
		assert.Equal(t, 400, myerrors.GetHTTPStatus(err))
		assert.Equal(t, "NotEnoughStock", myerrors.GetKind(err))
		assert.Equal(t, 2, f.stockOf(t, tulips.UID))
		_, found, _ := f.basketStore.Get(f.c, userUID)
		assert.False(t, found)
	})

	t.Run("Same product is merged into one item", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", daisies, 2)

		// given
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, basketevents.ItemAdded{
			BasketUID:     "basket-1",
			BasketVersion: 2,
			UserUID:       userUID,
			BasketItemUID: "item-1",
			ProductUID:    daisies.UID,
			Quantity:      3,
		}).Return(nil)

		// when
		basket, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 3, "")

		// then
		require.NoError(t, err)
		require.Len(t, basket.Items, 1)
		assert.Equal(t, 5, basket.Items[0].Quantity)
		assert.Equal(t, "25.00", basket.TotalPrice.StringFixed(2))
		assert.Equal(t, 5, f.stockOf(t, daisies.UID))
	})

	t.Run("Different products get their own item", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", daisies, 1)

		f.uuider.EXPECT().Create().Return("item-2")
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

		basket, err := f.sut.addToBasket(f.c, userUID, orchid.UID, 2, "")

		require.NoError(t, err)
		require.Len(t, basket.Items, 2)
		assert.Equal(t, "25.00", basket.TotalPrice.StringFixed(2))
	})

	t.Run("Invalid quantity", func(t *testing.T) {
		for _, quantity := range []int{0, -1} {
			ctrl := gomock.NewController(t)
			f := setupService(t, ctrl)

			_, err := f.sut.addToBasket(f.c, userUID, daisies.UID, quantity, "")

			assert.True(t, errors.Is(err, ErrInvalidQuantity))
			assert.Equal(t, 400, myerrors.GetHTTPStatus(err))
			assert.Equal(t, 10, f.stockOf(t, daisies.UID))
		}
	})

	t.Run("Unknown product", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		_, err := f.sut.addToBasket(f.c, userUID, "p-unknown", 1, "")

		assert.True(t, errors.Is(err, ErrProductNotFound))
		assert.Equal(t, 404, myerrors.GetHTTPStatus(err))
	})

	t.Run("Inactive product", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		_, err := f.sut.addToBasket(f.c, userUID, lilies.UID, 1, "")

		assert.True(t, errors.Is(err, ErrProductNotFound))
		assert.Equal(t, 8, f.stockOf(t, lilies.UID))
	})

	t.Run("Publish failure rolls back the reservation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		// given
		f.uuider.EXPECT().Create().Return("basket-1")
		f.uuider.EXPECT().Create().Return("item-1")
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(errors.New("outbox unavailable"))

		// when
		_, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 3, "")

		// then
		assert.Error(t, err)
		assert.Equal(t, 500, myerrors.GetHTTPStatus(err))
		assert.Equal(t, 10, f.stockOf(t, daisies.UID))
		_, found, _ := f.basketStore.Get(f.c, userUID)
		assert.False(t, found)
	})

	t.Run("Repeated idempotency key is applied once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		// given
		f.uuider.EXPECT().Create().Return("basket-1")
		f.uuider.EXPECT().Create().Return("item-1")
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil).Times(1)

		// when
		first, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 3, "key-1")
		require.NoError(t, err)
		second, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 3, "key-1")

		// then
		require.NoError(t, err)
		assert.Equal(t, first.Version, second.Version)
		assert.True(t, first.TotalPrice.Equal(second.TotalPrice))
		assert.Equal(t, 7, f.stockOf(t, daisies.UID))
	})

	t.Run("Idempotency key reused for another request is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", daisies, 3)

		// given
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)
		_, err := f.sut.removeItem(f.c, userUID, "item-1", "key-1")
		require.NoError(t, err)

		// when
		_, err = f.sut.addToBasket(f.c, userUID, orchid.UID, 2, "key-1")

		// then
		assert.True(t, errors.Is(err, ErrRequestKeyReused))
		assert.Equal(t, 409, myerrors.GetHTTPStatus(err))
		assert.Equal(t, "IdempotencyKeyReused", myerrors.GetKind(err))
		assert.Equal(t, 5, f.stockOf(t, orchid.UID))
	})

	t.Run("Idempotency key reused with another quantity is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.uuider.EXPECT().Create().Return("basket-1")
		f.uuider.EXPECT().Create().Return("item-1")
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

		_, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 3, "key-1")
		require.NoError(t, err)
		_, err = f.sut.addToBasket(f.c, userUID, daisies.UID, 4, "key-1")

		assert.True(t, errors.Is(err, ErrRequestKeyReused))
		assert.Equal(t, 7, f.stockOf(t, daisies.UID))
	})

	t.Run("Expired idempotency key is forgotten", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		// given
		stale := processedRequest{
			UID:         processedRequestUID(userUID, "key-1"),
			UserUID:     userUID,
			Key:         "key-1",
			Operation:   operationRemove,
			Fingerprint: requestFingerprint(operationRemove, "item-0"),
			CreatedAt:   mytime.ExampleTime.Add(-48 * time.Hour),
		}
		require.NoError(t, f.requestStore.Put(f.c, stale.UID, stale))
		older := stale
		older.UID = processedRequestUID(userUID, "key-0")
		older.Key = "key-0"
		require.NoError(t, f.requestStore.Put(f.c, older.UID, older))

		f.uuider.EXPECT().Create().Return("basket-1")
		f.uuider.EXPECT().Create().Return("item-1")
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

		// when
		basket, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 3, "key-1")

		// then
		require.NoError(t, err)
		require.Len(t, basket.Items, 1)
		assert.Equal(t, 7, f.stockOf(t, daisies.UID))

		_, found, err := f.requestStore.Get(f.c, older.UID)
		require.NoError(t, err)
		assert.False(t, found)
		current, found, err := f.requestStore.Get(f.c, stale.UID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, mytime.ExampleTime.Equal(current.CreatedAt))
		assert.Equal(t, requestFingerprint(operationAdd, daisies.UID, 3), current.Fingerprint)
	})
}

func TestUpdateItemQuantity(t *testing.T) {
	t.Run("Increase takes the difference from stock", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", orchid, 2)
		require.Equal(t, 3, f.stockOf(t, orchid.UID))

		// given
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, basketevents.ItemQuantityUpdated{
			BasketUID:     "basket-1",
			BasketVersion: 2,
			UserUID:       userUID,
			BasketItemUID: "item-1",
			ProductUID:    orchid.UID,
			OldQuantity:   2,
			NewQuantity:   4,
		}).Return(nil)

		// when
		basket, err := f.sut.updateItemQuantity(f.c, userUID, "item-1", 4, "")

		// then
		require.NoError(t, err)
		assert.Equal(t, 4, basket.Items[0].Quantity)
		assert.Equal(t, "40.00", basket.TotalPrice.StringFixed(2))
		assert.Equal(t, 1, f.stockOf(t, orchid.UID))
	})

	t.Run("Decrease returns the difference to stock", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", orchid, 4)
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

		basket, err := f.sut.updateItemQuantity(f.c, userUID, "item-1", 1, "")

		require.NoError(t, err)
		assert.Equal(t, "10.00", basket.TotalPrice.StringFixed(2))
		assert.Equal(t, 4, f.stockOf(t, orchid.UID))
	})

	t.Run("Increase beyond stock changes nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", orchid, 2)

		_, err := f.sut.updateItemQuantity(f.c, userUID, "item-1", 6, "")

		assert.True(t, errors.Is(err, ErrNotEnoughStock))
		assert.Equal(t, 3, f.stockOf(t, orchid.UID))
		stored, _, _ := f.basketStore.Get(f.c, userUID)
		assert.Equal(t, 2, stored.Items[0].Quantity)
	})

	t.Run("Unchanged quantity emits nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", orchid, 2)

		basket, err := f.sut.updateItemQuantity(f.c, userUID, "item-1", 2, "")

		require.NoError(t, err)
		assert.Equal(t, 1, basket.Version)
		assert.Equal(t, 3, f.stockOf(t, orchid.UID))
	})

	t.Run("Quantity below one is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", orchid, 2)

		_, err := f.sut.updateItemQuantity(f.c, userUID, "item-1", 0, "")

		assert.True(t, errors.Is(err, ErrInvalidQuantity))
		assert.Equal(t, 3, f.stockOf(t, orchid.UID))
	})

	t.Run("Unknown item", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", orchid, 2)

		_, err := f.sut.updateItemQuantity(f.c, userUID, "item-2", 3, "")

		assert.True(t, errors.Is(err, ErrBasketItemNotFound))
		assert.Equal(t, 404, myerrors.GetHTTPStatus(err))
	})

	t.Run("No basket", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		_, err := f.sut.updateItemQuantity(f.c, userUID, "item-1", 3, "")

		assert.True(t, errors.Is(err, ErrBasketNotFound))
		assert.Equal(t, 404, myerrors.GetHTTPStatus(err))
	})
}

func TestRemoveItem(t *testing.T) {
	t.Run("Remove returns stock and lowers the total", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", tulips, 2)
		f.uuider.EXPECT().Create().Return("item-2")
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)
		_, err := f.sut.addToBasket(f.c, userUID, daisies.UID, 1, "")
		require.NoError(t, err)

		// given
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, basketevents.ItemRemoved{
			BasketUID:     "basket-1",
			BasketVersion: 3,
			UserUID:       userUID,
			BasketItemUID: "item-1",
			ProductUID:    tulips.UID,
			Quantity:      2,
		}).Return(nil)

		// when
		basket, err := f.sut.removeItem(f.c, userUID, "item-1", "")

		// then
		require.NoError(t, err)
		require.Len(t, basket.Items, 1)
		assert.Equal(t, "5.00", basket.TotalPrice.StringFixed(2))
		assert.Equal(t, 2, f.stockOf(t, tulips.UID))
	})

	t.Run("Basket remains when empty", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", daisies, 3)
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

		basket, err := f.sut.removeItem(f.c, userUID, "item-1", "")

		require.NoError(t, err)
		assert.Empty(t, basket.Items)
		assert.True(t, basket.TotalPrice.IsZero())
		assert.Equal(t, 10, f.stockOf(t, daisies.UID))
		_, found, _ := f.basketStore.Get(f.c, userUID)
		assert.True(t, found)
	})

	t.Run("Removing twice fails the second time", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", daisies, 3)
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

		_, err := f.sut.removeItem(f.c, userUID, "item-1", "")
		require.NoError(t, err)
		_, err = f.sut.removeItem(f.c, userUID, "item-1", "")

		assert.True(t, errors.Is(err, ErrBasketItemNotFound))
		assert.Equal(t, 10, f.stockOf(t, daisies.UID))
	})

	t.Run("Item of a deactivated product can be removed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", daisies, 3)
		deactivated := daisies
		deactivated.Stock = 7
		deactivated.Inactive = true
		require.NoError(t, f.productStore.Put(f.c, daisies.UID, deactivated))
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil)

		_, err := f.sut.removeItem(f.c, userUID, "item-1", "")

		require.NoError(t, err)
		assert.Equal(t, 10, f.stockOf(t, daisies.UID))
	})
}

func TestGetBasket(t *testing.T) {
	t.Run("No basket yet", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)

		_, err := f.sut.getBasket(f.c, userUID)

		assert.True(t, errors.Is(err, ErrBasketNotFound))
		assert.Equal(t, "BasketNotFound", myerrors.GetKind(err))
	})

	t.Run("Returns the cached total", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", daisies, 3)

		// given a price change after the last mutation
		repriced := daisies
		repriced.Stock = 7
		repriced.SalePrice = decimal.RequireFromString("6.00")
		require.NoError(t, f.productStore.Put(f.c, daisies.UID, repriced))

		// when
		basket, err := f.sut.getBasket(f.c, userUID)

		// then
		require.NoError(t, err)
		assert.Equal(t, "15.00", basket.TotalPrice.StringFixed(2))
	})

	t.Run("Round trip restores stock", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := setupService(t, ctrl)
		f.givenItem(t, "item-1", orchid, 1)
		f.publisher.EXPECT().Publish(gomock.Any(), basketevents.TopicName, gomock.Any()).Return(nil).Times(2)

		_, err := f.sut.updateItemQuantity(f.c, userUID, "item-1", 5, "")
		require.NoError(t, err)
		_, err = f.sut.removeItem(f.c, userUID, "item-1", "")
		require.NoError(t, err)

		basket, err := f.sut.getBasket(f.c, userUID)
		require.NoError(t, err)
		assert.Empty(t, basket.Items)
		assert.Equal(t, 5, f.stockOf(t, orchid.UID))
	})
}
