package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MarcGrol/flowershop/lib/myauth"
	"github.com/MarcGrol/flowershop/lib/myerrors"
	"github.com/MarcGrol/flowershop/lib/mylog"
	"github.com/MarcGrol/flowershop/lib/mystore"
	"github.com/MarcGrol/flowershop/services/catalog/catalogevents"
)

type CreateProductRequest struct {
	Name             string
	Description      string
	Category         string
	Image            string
	Price            decimal.Decimal
	Quantity         int
	RestockThreshold *int
}

// GetProduct returns the product, also when it is deactivated.
func (s *service) GetProduct(c context.Context, productUID string) (Product, error) {
	product, found, err := s.productStore.Get(c, productUID)
	if err != nil {
		return Product{}, myerrors.NewInternalError(err)
	}
	if !found {
		return Product{}, myerrors.NewNotFoundError(fmt.Errorf("%w: %s", ErrProductNotFound, productUID))
	}

	return product, nil
}

// AdjustStock adds delta to the stock of a product, provided the result is not negative.
// It joins the transaction in c, if any.
func (s *service) AdjustStock(c context.Context, productUID string, delta int) (Product, error) {
	c, span := s.tracer.Start(c, "catalog.AdjustStock")
	defer span.End()
	span.SetAttributes(attribute.String("product.uid", productUID), attribute.Int("stock.delta", delta))

	var product Product
	err := s.productStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		product, err = s.GetProduct(c, productUID)
		if err != nil {
			return err
		}

		newStock := product.Stock + delta
		if newStock < 0 {
			return myerrors.NewInvalidInputError(fmt.Errorf("%w: product %s has %d available, %d requested", ErrNotEnoughStock, productUID, product.Stock, -delta))
		}

		wasLowOnStock := product.IsLowOnStock()
		product.Stock = newStock
		product.LastModified = s.nower.Now()

		err = s.productStore.Put(c, product.UID, product)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return s.signalLowStock(c, wasLowOnStock, product)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Product{}, err
	}

	return product, nil
}

// listProducts returns active products. Out of stock products are only listed for catalog managers.
func (s *service) listProducts(c context.Context, identity myauth.Identity, category string) ([]Product, error) {
	s.logger.Log(c, "", mylog.SeverityInfo, "List products (category: %q)", category)

	filters := []mystore.Filter{{Field: "Inactive", Compare: "=", Value: false}}
	if category != "" {
		filters = append(filters, mystore.Filter{Field: "Category", Compare: "=", Value: normalizeCategory(category)})
	}

	products, err := s.productStore.Query(c, filters, "Name")
	if err != nil {
		return nil, myerrors.NewInternalError(err)
	}

	if myauth.CanManageCatalog(identity) {
		return products, nil
	}

	available := make([]Product, 0, len(products))
	for _, p := range products {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return available, nil
}

func (s *service) listCategories(c context.Context) ([]string, error) {
	products, err := s.productStore.Query(c, []mystore.Filter{{Field: "Inactive", Compare: "=", Value: false}}, "")
	if err != nil {
		return nil, myerrors.NewInternalError(err)
	}

	unique := map[string]bool{}
	for _, p := range products {
		unique[p.Category] = true
	}

	categories := make([]string, 0, len(unique))
	for category := range unique {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	return categories, nil
}

func (s *service) getProductByName(c context.Context, category string, name string) (Product, error) {
	products, err := s.productStore.Query(c, []mystore.Filter{
		{Field: "Name", Compare: "=", Value: strings.TrimSpace(name)},
		{Field: "Category", Compare: "=", Value: normalizeCategory(category)},
		{Field: "Inactive", Compare: "=", Value: false},
	}, "")
	if err != nil {
		return Product{}, myerrors.NewInternalError(err)
	}
	if len(products) == 0 {
		return Product{}, myerrors.NewNotFoundError(fmt.Errorf("%w: %s in category %s", ErrProductNotFound, name, category))
	}

	return products[0], nil
}

func (s *service) createProduct(c context.Context, req CreateProductRequest) (Product, error) {
	err := validateCreateRequest(req)
	if err != nil {
		return Product{}, err
	}

	now := s.nower.Now()
	product := Product{
		UID:              s.uuider.Create(),
		Name:             strings.TrimSpace(req.Name),
		Description:      req.Description,
		Category:         normalizeCategory(req.Category),
		Image:            req.Image,
		SalePrice:        req.Price,
		Stock:            req.Quantity,
		RestockThreshold: defaultRestockThreshold,
		CreatedAt:        now,
		LastModified:     now,
	}
	if req.RestockThreshold != nil {
		product.RestockThreshold = *req.RestockThreshold
	}

	s.logger.Log(c, product.UID, mylog.SeverityInfo, "Create product %s in category %s", product.Name, product.Category)

	err = s.productStore.RunInTransaction(c, func(c context.Context) error {
		existing, err := s.productStore.Query(c, []mystore.Filter{{Field: "Name", Compare: "=", Value: product.Name}}, "")
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		if len(existing) > 0 {
			return myerrors.NewConflictError(fmt.Errorf("%w: %s", ErrDuplicateProduct, product.Name))
		}

		err = s.productStore.Put(c, product.UID, product)
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	return product, nil
}

func validateCreateRequest(req CreateProductRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return myerrors.NewInvalidInputErrorf("product name is mandatory")
	case strings.TrimSpace(req.Category) == "":
		return myerrors.NewInvalidInputErrorf("product category is mandatory")
	case !req.Price.IsPositive():
		return myerrors.NewInvalidInputErrorf("product price must be positive, got %s", req.Price)
	case req.Quantity < 0:
		return myerrors.NewInvalidInputErrorf("product quantity cannot be negative, got %d", req.Quantity)
	case req.RestockThreshold != nil && *req.RestockThreshold < 0:
		return myerrors.NewInvalidInputErrorf("restock threshold cannot be negative, got %d", *req.RestockThreshold)
	}
	return nil
}

// updateProductQuantity sets the stock of a product, typically after restocking.
func (s *service) updateProductQuantity(c context.Context, category string, name string, quantity int) (Product, error) {
	if quantity < 0 {
		return Product{}, myerrors.NewInvalidInputErrorf("quantity cannot be negative, got %d", quantity)
	}

	var product Product
	err := s.productStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		product, err = s.getProductByName(c, category, name)
		if err != nil {
			return err
		}

		s.logger.Log(c, product.UID, mylog.SeverityInfo, "Set stock of %s from %d to %d", product.Name, product.Stock, quantity)

		wasLowOnStock := product.IsLowOnStock()
		product.Stock = quantity
		product.LastModified = s.nower.Now()

		err = s.productStore.Put(c, product.UID, product)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return s.signalLowStock(c, wasLowOnStock, product)
	})
	if err != nil {
		return Product{}, err
	}

	return product, nil
}

// signalLowStock publishes ProductStockLow when an active product just dropped to or below its threshold.
func (s *service) signalLowStock(c context.Context, wasLowOnStock bool, product Product) error {
	if wasLowOnStock || !product.IsLowOnStock() || product.Inactive {
		return nil
	}

	s.logger.Log(c, product.UID, mylog.SeverityInfo, "Product %s is low on stock (%d left)", product.Name, product.Stock)

	err := s.publisher.Publish(c, catalogevents.TopicName, catalogevents.ProductStockLow{
		ProductUID:       product.UID,
		Name:             product.Name,
		Stock:            product.Stock,
		RestockThreshold: product.RestockThreshold,
		Timestamp:        product.LastModified,
	})
	if err != nil {
		return myerrors.NewInternalError(err)
	}
	return nil
}

// deactivateProduct hides a product from the catalog. Products are never deleted
// because baskets may still refer to them.
func (s *service) deactivateProduct(c context.Context, productUID string) (Product, error) {
	var product Product
	err := s.productStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		product, err = s.GetProduct(c, productUID)
		if err != nil {
			return err
		}
		if product.Inactive {
			return nil
		}

		s.logger.Log(c, product.UID, mylog.SeverityInfo, "Deactivate product %s", product.Name)

		product.Inactive = true
		product.LastModified = s.nower.Now()

		err = s.productStore.Put(c, product.UID, product)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		err = s.publisher.Publish(c, catalogevents.TopicName, catalogevents.ProductDeactivated{
			ProductUID: product.UID,
			Name:       product.Name,
			Timestamp:  product.LastModified,
		})
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	return product, nil
}

// listLowStock returns the active products that need restocking, lowest stock first.
func (s *service) listLowStock(c context.Context) ([]Product, error) {
	products, err := s.productStore.Query(c, []mystore.Filter{{Field: "Inactive", Compare: "=", Value: false}}, "Stock")
	if err != nil {
		return nil, myerrors.NewInternalError(err)
	}

	low := []Product{}
	for _, p := range products {
		if p.IsLowOnStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Warmup touches the product store so its connection is established.
func (s *service) Warmup(c context.Context) error {
	_, err := s.listCategories(c)
	return err
}
