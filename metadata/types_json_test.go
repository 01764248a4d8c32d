package metadata

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerialization(t *testing.T) {
	tests := []struct {
		name string
		val  Value
		want string
	}{
		{"Null", Null(), `null`},
		{"Int", Int(123), `123`},
		{"Float", Float(2.5), `2.5`},
		{"String", String("hello"), `"hello"`},
		{"Bool", Bool(true), `true`},
		{"Array", Array([]Value{Int(1), String("a")}), `[1,"a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.val)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			var got Value
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, tt.val, got)
		})
	}
}

func TestJSONNumbers(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`7`), &v))
	assert.Equal(t, KindInt, v.Kind)

	require.NoError(t, json.Unmarshal([]byte(`7.25`), &v))
	assert.Equal(t, KindFloat, v.Kind)
	assert.InDelta(t, 7.25, v.F64, 0)

	assert.Error(t, json.Unmarshal([]byte(`1e400`), &v))

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestJSONNonFinite(t *testing.T) {
	b, err := json.Marshal(Float(math.Inf(-1)))
	require.NoError(t, err)
	assert.Equal(t, `"-Inf"`, string(b))
}

func TestRecordJSON(t *testing.T) {
	rec := Record{"exp_time": Int(3), "label": String("flat")}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"exp_time":3,"label":"flat"}`, string(b))

	var got Record
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, rec, got)
	assert.Equal(t, map[string]any{"exp_time": int64(3), "label": "flat"}, got.Map())
}

func TestValueAccessors(t *testing.T) {
	i, ok := Int(4).AsInt64()
	assert.True(t, ok)
	assert.Equal(t, int64(4), i)

	_, ok = Int(4).AsFloat64()
	assert.False(t, ok)

	s, ok := String("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	b, ok := Bool(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	assert.Equal(t, "", Int(1).StringValue())
	assert.NotEqual(t, Int(1).Key(), Float(1).Key())
	assert.Equal(t, String("a").Key(), String("a").Key())
}
