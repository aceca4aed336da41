package mongostore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func rawValue(t *testing.T, v any) bson.RawValue {
	t.Helper()
	typ, data, err := bson.MarshalValue(v)
	if err != nil {
		t.Fatalf("marshal value: %v", err)
	}
	return bson.RawValue{Type: typ, Value: data}
}

func TestDecodeAddress(t *testing.T) {
	text := decodeAddress(rawValue(t, "42 Elm Road"))
	if assert.NotNil(t, text) {
		assert.Equal(t, "42 Elm Road", text.String())
	}

	structured := decodeAddress(rawValue(t, bson.M{"street": "1 Main St", "city": "Springfield"}))
	if assert.NotNil(t, structured) {
		assert.True(t, structured.Structured())
		assert.Equal(t, "1 Main St, Springfield", structured.String())
	}

	assert.Nil(t, decodeAddress(rawValue(t, "")))
	assert.Nil(t, decodeAddress(rawValue(t, bson.M{})))
	assert.Nil(t, decodeAddress(bson.RawValue{Type: bsontype.Null}))
	assert.Nil(t, decodeAddress(bson.RawValue{}))
}
