package mylog

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarcGrol/flowershop/lib/mycontext"
)

func TestLogger(t *testing.T) {
	t.Run("Fields and severity", func(t *testing.T) {
		// given
		core, logs := observer.New(zap.DebugLevel)
		sut := newZapLogger("basket", core)

		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Cloud-Trace-Context", "abc/1")
		c := mycontext.ContextFromHTTPRequest(r)

		// when
		sut.Log(c, "basket-123", SeverityWarn, "Not enough %s", "roses")

		// then
		entries := logs.All()
		assert.Len(t, entries, 1)
		assert.Equal(t, "Not enough roses", entries[0].Message)
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
		fields := entries[0].ContextMap()
		assert.Equal(t, "basket", fields["component"])
		assert.Equal(t, map[string]interface{}{"aggregate": "basket-123"}, fields["labels"])
		assert.Contains(t, fields["logging.googleapis.com/trace"], "/traces/abc")
	})

	t.Run("No trace label", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		sut := newZapLogger("catalog", core)

		sut.Log(context.TODO(), "", SeverityDebug, "hidden")
		sut.Log(context.TODO(), "", SeverityInfo, "shown")

		entries := logs.All()
		assert.Len(t, entries, 1)
		assert.NotContains(t, entries[0].ContextMap(), "labels")
	})
}
