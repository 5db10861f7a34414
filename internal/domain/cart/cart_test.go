package cart

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductIDUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want ProductID
	}{
		{name: "string id", json: `"abc-1"`, want: "abc-1"},
		{name: "integer id", json: `42`, want: "42"},
		{name: "large integer keeps digits", json: `9007199254740993`, want: "9007199254740993"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ProductID
			require.NoError(t, json.Unmarshal([]byte(tt.json), &id))
			assert.Equal(t, tt.want, id)
		})
	}

	t.Run("object rejected", func(t *testing.T) {
		var id ProductID
		assert.Error(t, json.Unmarshal([]byte(`{"id":1}`), &id))
	})

	t.Run("string and number ids compare equal", func(t *testing.T) {
		var item Item
		require.NoError(t, json.Unmarshal([]byte(`{"product_id":7,"quantity":1,"price":"10"}`), &item))
		assert.Equal(t, ProductID("7"), item.ProductID)
	})
}

func TestTotal(t *testing.T) {
	items := []Item{
		{ProductID: "1", Quantity: 2, Price: decimal.RequireFromString("49.99")},
		{ProductID: "2", Quantity: 1, Price: decimal.RequireFromString("0.02")},
	}
	assert.True(t, Total(items).Equal(decimal.RequireFromString("100")))
	assert.True(t, Total(nil).IsZero())
}
