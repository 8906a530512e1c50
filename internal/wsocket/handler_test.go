package wsocket

import (
	"encoding/json"
	"testing"

	"interchat_go_backend/internal/broker"
	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageEvent(t *testing.T, translation *models.Translation) broker.Event {
	t.Helper()
	evt, err := broker.NewEvent(services.EventMessage, services.MessageEvent{
		Message:     models.Message{ID: uuid.New(), Content: "Hello", OriginalLanguage: "en"},
		Translation: translation,
	})
	require.NoError(t, err)
	return evt
}

func decode(t *testing.T, evt broker.Event) services.MessageEvent {
	t.Helper()
	var payload services.MessageEvent
	require.NoError(t, json.Unmarshal(evt.Data, &payload))
	return payload
}

func TestEventForViewer(t *testing.T) {
	spanish := &models.Translation{TargetLanguage: "es", TranslatedText: "Hola"}

	t.Run("Matching language keeps the translation", func(t *testing.T) {
		out := EventForViewer(messageEvent(t, spanish), "es")
		payload := decode(t, out)
		require.NotNil(t, payload.Translation)
		assert.Equal(t, "Hola", payload.Translation.TranslatedText)
	})

	t.Run("Other language gets the raw message", func(t *testing.T) {
		out := EventForViewer(messageEvent(t, spanish), "ja")
		payload := decode(t, out)
		assert.Nil(t, payload.Translation)
		assert.Equal(t, "Hello", payload.Message.Content)
	})

	t.Run("Credit updates pass through", func(t *testing.T) {
		evt, err := broker.NewEvent(services.EventCreditUpdate, services.CreditUpdateEvent{Balance: 10, Delta: -2})
		require.NoError(t, err)
		assert.Equal(t, evt, EventForViewer(evt, "ja"))
	})
}
