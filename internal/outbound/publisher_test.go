package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/repository/memory"
	"github.com/rpattn/entitysync/internal/schema"
	"github.com/rpattn/entitysync/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRecordSendsJSONToSchemaTopic(t *testing.T) {
	store := memory.NewRecordStore()
	record := store.Seed("res.partner", domain.Values{"cliente_externo": "C1", "contacto_externo": "0", "name": "Ana"})
	events := transport.NewMemoryPublisher()

	require.NoError(t, NewPublisher(newBuilder(store), events, nil).PublishRecord(context.Background(), schema.Cliente(), record))

	messages := events.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "sincronizacion-tablas", messages[0].Topic)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(messages[0].Payload, &decoded))
	assert.Equal(t, "C1", decoded["Cliente"])
	assert.Equal(t, "Clientes", decoded["Tabla"])
}

func TestPublishRecordDefaultsTopic(t *testing.T) {
	store := memory.NewRecordStore()
	es := schema.Producto()
	es.Topic = ""
	record := store.Seed(es.Collection, domain.Values{"producto_externo": "P1"})
	events := transport.NewMemoryPublisher()

	require.NoError(t, NewPublisher(newBuilder(store), events, nil).PublishRecord(context.Background(), es, record))
	assert.Equal(t, DefaultTopic, events.Messages()[0].Topic)
}

func TestPublishRecordReturnsTransportError(t *testing.T) {
	store := memory.NewRecordStore()
	record := store.Seed("res.partner", domain.Values{"cliente_externo": "C1"})
	events := transport.NewMemoryPublisher()
	events.FailWith(errors.New("broker down"))

	err := NewPublisher(newBuilder(store), events, nil).PublishRecord(context.Background(), schema.Cliente(), record)
	assert.Error(t, err)
}
