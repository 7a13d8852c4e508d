package warmup

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/flowershop/lib/mycontext"
	"github.com/MarcGrol/flowershop/lib/myerrors"
	"github.com/MarcGrol/flowershop/lib/myhttp"
	"github.com/MarcGrol/flowershop/lib/mylog"
)

// Warmer opens the connections a service needs before the first real request arrives.
type Warmer interface {
	Warmup(c context.Context) error
}

type webService struct {
	logger  mylog.Logger
	warmers []Warmer
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewService(warmers ...Warmer) *webService {
	return &webService{
		logger:  mylog.New("warmup"),
		warmers: warmers,
	}
}

func (s webService) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/_ah/warmup", s.warmupPage()).Methods("GET")
}

func (s *webService) warmupPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		for _, warmer := range s.warmers {
			err := warmer.Warmup(c)
			if err != nil {
				errorWriter.WriteError(c, w, 1, myerrors.NewUnavailableError(err))
				return
			}
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Successfully processed warmup request",
		})
	}
}
