package basket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	formcodec "github.com/go-playground/form/v4"
	"github.com/gorilla/mux"

	"github.com/MarcGrol/flowershop/lib/myauth"
	"github.com/MarcGrol/flowershop/lib/mycontext"
	"github.com/MarcGrol/flowershop/lib/myerrors"
	"github.com/MarcGrol/flowershop/lib/myhttp"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type AddItemRequest struct {
	ProductUID string `json:"productId"`
	Quantity   int    `json:"quantity"`
}

type quantityUpdate struct {
	NewQuantity *int `form:"newQuantity"`
}

type BasketResponse struct {
	BasketUID  string
	Items      []BasketItemResponse
	TotalPrice string
	Currency   string
}

type BasketItemResponse struct {
	BasketItemUID  string
	ProductUID     string
	ProductName    string
	ProductPrice   string
	Quantity       int
	ItemTotalPrice string
}

func (s *service) RegisterEndpoints(c context.Context, router *mux.Router) error {
	err := s.CreateTopics(c)
	if err != nil {
		return err
	}

	sub := router.PathPrefix("/api/v1/basket").Subrouter()
	sub.HandleFunc("/view", s.getBasketPage()).Methods("GET")
	sub.HandleFunc("/add", s.addToBasketPage()).Methods("POST")
	sub.HandleFunc("/{basketItemUID}/quantity", s.updateItemQuantityPage()).Methods("PUT")
	sub.HandleFunc("/{basketItemUID}/remove", s.removeItemPage()).Methods("DELETE")

	return nil
}

func (s *service) getBasketPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireIdentity(r)
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		basket, err := s.getBasket(c, identity.UserUID)
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponse(basket))
	}
}

func (s *service) addToBasketPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireIdentity(r)
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		req := AddItemRequest{}
		err = json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			writer.WriteError(c, w, 3, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request-body: %s", err)))
			return
		}
		if strings.TrimSpace(req.ProductUID) == "" {
			writer.WriteError(c, w, 3, myerrors.NewInvalidInputErrorf("productId is mandatory"))
			return
		}

		basket, err := s.addToBasket(c, identity.UserUID, req.ProductUID, req.Quantity, r.Header.Get(IdempotencyKeyHeader))
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponse(basket))
	}
}

func (s *service) updateItemQuantityPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireIdentity(r)
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		update := quantityUpdate{}
		err = formcodec.NewDecoder().Decode(&update, r.URL.Query())
		if err != nil || update.NewQuantity == nil {
			writer.WriteError(c, w, 3, myerrors.NewInvalidInputError(fmt.Errorf("%w: query parameter newQuantity must be an integer", ErrInvalidQuantity)))
			return
		}

		basket, err := s.updateItemQuantity(c, identity.UserUID, mux.Vars(r)["basketItemUID"], *update.NewQuantity, r.Header.Get(IdempotencyKeyHeader))
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponse(basket))
	}
}

func (s *service) removeItemPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireIdentity(r)
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		basket, err := s.removeItem(c, identity.UserUID, mux.Vars(r)["basketItemUID"], r.Header.Get(IdempotencyKeyHeader))
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponse(basket))
	}
}

func toResponse(basket Basket) BasketResponse {
	items := make([]BasketItemResponse, 0, len(basket.Items))
	for _, item := range basket.Items {
		items = append(items, BasketItemResponse{
			BasketItemUID:  item.UID,
			ProductUID:     item.ProductUID,
			ProductName:    item.ProductName,
			ProductPrice:   item.UnitPrice.StringFixed(2),
			Quantity:       item.Quantity,
			ItemTotalPrice: item.TotalPrice().StringFixed(2),
		})
	}

	return BasketResponse{
		BasketUID:  basket.UID,
		Items:      items,
		TotalPrice: basket.TotalPrice.StringFixed(2),
		Currency:   basket.Currency,
	}
}
