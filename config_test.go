package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("PORT", "")
		t.Setenv("SHOP_CURRENCY", "")
		t.Setenv("OTEL_INSECURE", "")

		config, err := LoadConfig()

		require.NoError(t, err)
		assert.Equal(t, "8080", config.Port)
		assert.Equal(t, "EUR", config.Currency)
		assert.False(t, config.OtelInsecure)
	})

	t.Run("From environment", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("SHOP_CURRENCY", " usd ")
		t.Setenv("KAFKA_BROKER", "localhost:9092")
		t.Setenv("OTEL_ENDPOINT", "localhost:4318")
		t.Setenv("OTEL_INSECURE", "true")

		config, err := LoadConfig()

		require.NoError(t, err)
		assert.Equal(t, "9090", config.Port)
		assert.Equal(t, "USD", config.Currency)
		assert.Equal(t, "localhost:9092", config.KafkaBroker)
		assert.Equal(t, "localhost:4318", config.OtelEndpoint)
		assert.True(t, config.OtelInsecure)
	})

	t.Run("Invalid", func(t *testing.T) {
		testCases := []struct {
			name  string
			key   string
			value string
		}{
			{name: "Port", key: "PORT", value: "http"},
			{name: "Currency", key: "SHOP_CURRENCY", value: "euro"},
			{name: "Insecure", key: "OTEL_INSECURE", value: "maybe"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv("PORT", "")
				t.Setenv("SHOP_CURRENCY", "")
				t.Setenv("OTEL_INSECURE", "")
				t.Setenv(tc.key, tc.value)

				_, err := LoadConfig()

				assert.Error(t, err)
			})
		}
	})
}

func TestConfigWarnings(t *testing.T) {
	t.Run("Kafka without cloud project", func(t *testing.T) {
		config := Config{KafkaBroker: "localhost:9092"}

		warnings := config.Warnings()

		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "KAFKA_BROKER")
	})

	t.Run("Kafka with cloud project", func(t *testing.T) {
		config := Config{KafkaBroker: "localhost:9092", ProjectID: "my-project"}

		assert.Empty(t, config.Warnings())
	})

	t.Run("No broker", func(t *testing.T) {
		assert.Empty(t, Config{}.Warnings())
	})
}
