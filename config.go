package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	serviceName     = "flowershop"
	defaultPort     = "8080"
	defaultCurrency = "EUR"
)

type Config struct {
	Port           string
	ProjectID      string
	KafkaBroker    string
	OtelEndpoint   string
	OtelAuthHeader string
	OtelInsecure   bool
	Currency       string
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Port:           os.Getenv("PORT"),
		ProjectID:      os.Getenv("GOOGLE_CLOUD_PROJECT"),
		KafkaBroker:    os.Getenv("KAFKA_BROKER"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
		Currency:       strings.ToUpper(strings.TrimSpace(os.Getenv("SHOP_CURRENCY"))),
	}

	if config.Port == "" {
		config.Port = defaultPort
	}
	if _, err := strconv.Atoi(config.Port); err != nil {
		return nil, fmt.Errorf("PORT environment variable must be numeric, got %q", config.Port)
	}

	if config.Currency == "" {
		config.Currency = defaultCurrency
	}
	if len(config.Currency) != 3 {
		return nil, fmt.Errorf("SHOP_CURRENCY environment variable must be an ISO-4217 code, got %q", config.Currency)
	}

	if insecure := os.Getenv("OTEL_INSECURE"); insecure != "" {
		value, err := strconv.ParseBool(insecure)
		if err != nil {
			return nil, fmt.Errorf("OTEL_INSECURE environment variable must be a boolean, got %q", insecure)
		}
		config.OtelInsecure = value
	}

	return config, nil
}

// Warnings lists combinations that load fine but do not behave as expected.
func (c Config) Warnings() []string {
	warnings := []string{}
	if c.KafkaBroker != "" && c.ProjectID == "" {
		warnings = append(warnings, "KAFKA_BROKER is set without GOOGLE_CLOUD_PROJECT: the in-memory task queue never triggers the outbox flush, so events stay queued")
	}
	return warnings
}
