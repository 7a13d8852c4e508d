package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	formcodec "github.com/go-playground/form/v4"
	"github.com/gorilla/mux"

	"github.com/MarcGrol/flowershop/lib/myauth"
	"github.com/MarcGrol/flowershop/lib/mycontext"
	"github.com/MarcGrol/flowershop/lib/myerrors"
	"github.com/MarcGrol/flowershop/lib/myhttp"
)

type ProductResponse struct {
	ProductUID       string
	Name             string
	Description      string
	Category         string
	Image            string `json:",omitempty"`
	Price            string
	Stock            *int  `json:",omitempty"`
	RestockThreshold *int  `json:",omitempty"`
	Inactive         bool  `json:",omitempty"`
}

type quantityUpdate struct {
	Quantity *int `form:"quantity"`
}

func (s *service) RegisterEndpoints(c context.Context, router *mux.Router) error {
	err := s.CreateTopics(c)
	if err != nil {
		return err
	}

	sub := router.PathPrefix("/api/v1/products").Subrouter()
	sub.HandleFunc("", s.listProductsPage()).Methods("GET")
	sub.HandleFunc("", s.createProductPage()).Methods("POST")
	sub.HandleFunc("/categories", s.listCategoriesPage()).Methods("GET")
	sub.HandleFunc("/restock", s.listLowStockPage()).Methods("GET")
	sub.HandleFunc("/{category}", s.listProductsPage()).Methods("GET")
	sub.HandleFunc("/{category}/{name}", s.getProductPage()).Methods("GET")
	sub.HandleFunc("/{category}/{name}", s.updateQuantityPage()).Methods("PUT")
	sub.HandleFunc("/{productUID}", s.deactivateProductPage()).Methods("DELETE")

	return nil
}

func (s *service) listProductsPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, _ := myauth.FromRequest(r)

		products, err := s.listProducts(c, identity, mux.Vars(r)["category"])
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponses(identity, products))
	}
}

func (s *service) listCategoriesPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		categories, err := s.listCategories(c)
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		writer.Write(c, w, http.StatusOK, categories)
	}
}

func (s *service) getProductPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, _ := myauth.FromRequest(r)

		product, err := s.getProductByName(c, mux.Vars(r)["category"], mux.Vars(r)["name"])
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponse(identity, product))
	}
}

func (s *service) createProductPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireAdmin(r)
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		req := CreateProductRequest{}
		err = json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			writer.WriteError(c, w, 3, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request-body: %s", err)))
			return
		}

		product, err := s.createProduct(c, req)
		if err != nil {
			writer.WriteError(c, w, 4, err)
			return
		}

		writer.Write(c, w, http.StatusCreated, toResponse(identity, product))
	}
}

func (s *service) updateQuantityPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireAdmin(r)
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		update := quantityUpdate{}
		err = formcodec.NewDecoder().Decode(&update, r.URL.Query())
		if err != nil || update.Quantity == nil {
			writer.WriteError(c, w, 3, myerrors.NewInvalidInputErrorf("query parameter quantity must be an integer"))
			return
		}

		product, err := s.updateProductQuantity(c, mux.Vars(r)["category"], mux.Vars(r)["name"], *update.Quantity)
		if err != nil {
			writer.WriteError(c, w, 4, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponse(identity, product))
	}
}

func (s *service) deactivateProductPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireAdmin(r)
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		product, err := s.deactivateProduct(c, mux.Vars(r)["productUID"])
		if err != nil {
			writer.WriteError(c, w, 4, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponse(identity, product))
	}
}

func (s *service) listLowStockPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		writer := myhttp.NewWriter(s.logger)

		identity, err := myauth.RequireAdmin(r)
		if err != nil {
			writer.WriteError(c, w, 2, err)
			return
		}

		products, err := s.listLowStock(c)
		if err != nil {
			writer.WriteError(c, w, 1, err)
			return
		}

		writer.Write(c, w, http.StatusOK, toResponses(identity, products))
	}
}

func toResponses(identity myauth.Identity, products []Product) []ProductResponse {
	responses := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		responses = append(responses, toResponse(identity, p))
	}
	return responses
}

func toResponse(identity myauth.Identity, p Product) ProductResponse {
	resp := ProductResponse{
		ProductUID:  p.UID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Image:       p.Image,
		Price:       p.SalePrice.StringFixed(2),
		Inactive:    p.Inactive,
	}
	if myauth.CanViewStock(identity) {
		stock, threshold := p.Stock, p.RestockThreshold
		resp.Stock = &stock
		resp.RestockThreshold = &threshold
	}
	return resp
}
