package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MarcGrol/flowershop/lib/mylog"
	"github.com/MarcGrol/flowershop/lib/mypublisher"
	"github.com/MarcGrol/flowershop/lib/mypubsub"
	"github.com/MarcGrol/flowershop/lib/myqueue"
	"github.com/MarcGrol/flowershop/lib/mystore"
	"github.com/MarcGrol/flowershop/lib/mytime"
	"github.com/MarcGrol/flowershop/lib/mytracing"
	"github.com/MarcGrol/flowershop/lib/myuuid"
	"github.com/MarcGrol/flowershop/services/basket"
	"github.com/MarcGrol/flowershop/services/catalog"
	"github.com/MarcGrol/flowershop/services/warmup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := mylog.New("main")
	c := context.Background()

	err := run(c, logger)
	if err != nil {
		logger.Log(c, "", mylog.SeverityError, "Application failed: %s", err)
		os.Exit(1)
	}
}

func run(c context.Context, logger mylog.Logger) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}
	for _, warning := range config.Warnings() {
		logger.Log(c, "", mylog.SeverityWarn, "Configuration: %s", warning)
	}

	shutdownTracing, err := mytracing.Setup(c, mytracing.Config{
		ServiceName: serviceName,
		Endpoint:    config.OtelEndpoint,
		AuthHeader:  config.OtelAuthHeader,
		Insecure:    config.OtelInsecure,
	})
	if err != nil {
		return fmt.Errorf("error setting up tracing: %s", err)
	}
	defer func() {
		err := shutdownTracing(context.Background())
		if err != nil {
			logger.Log(c, "", mylog.SeverityWarn, "Error flushing spans: %s", err)
		}
	}()

	router := mux.NewRouter()

	pubsub, pubsubCleanup, err := mypubsub.New(c)
	if err != nil {
		return fmt.Errorf("error creating pubsub: %s", err)
	}
	defer pubsubCleanup()

	queue, queueCleanup, err := myqueue.New(c)
	if err != nil {
		return fmt.Errorf("error creating task queue: %s", err)
	}
	defer queueCleanup()

	nower := mytime.RealNower{}
	uuider := myuuid.RealUUIDer{}

	publisher, publisherCleanup, err := mypublisher.New(c, pubsub, queue, nower)
	if err != nil {
		return fmt.Errorf("error creating publisher: %s", err)
	}
	defer publisherCleanup()
	publisher.RegisterEndpoints(c, router)

	productStore, productStoreCleanup, err := mystore.New[catalog.Product](c)
	if err != nil {
		return fmt.Errorf("error creating product store: %s", err)
	}
	defer productStoreCleanup()

	catalogService := catalog.NewService(productStore, nower, uuider, publisher)
	err = catalogService.RegisterEndpoints(c, router)
	if err != nil {
		return fmt.Errorf("error registering catalog endpoints: %s", err)
	}

	basketStore, requestStore, basketStoreCleanup, err := basket.NewStores(c)
	if err != nil {
		return err
	}
	defer basketStoreCleanup()

	basketService := basket.NewService(basketStore, requestStore, catalogService, nower, uuider, publisher, config.Currency)
	err = basketService.RegisterEndpoints(c, router)
	if err != nil {
		return fmt.Errorf("error registering basket endpoints: %s", err)
	}

	warmup.NewService(catalogService, basketService).RegisterEndpoints(c, router)

	return startWebServerBlocking(c, logger, config.Port, otelhttp.NewHandler(router, serviceName))
}

func startWebServerBlocking(c context.Context, logger mylog.Logger, port string, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	c, stop := signal.NotifyContext(c, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Log(c, "", mylog.SeverityInfo, "Starting webserver on port %s (try http://localhost:%s)", port, port)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("error starting webserver on port %s: %s", port, err)

	case <-c.Done():
		logger.Log(context.Background(), "", mylog.SeverityInfo, "Shutting down webserver")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
