package alert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesMemberOrder(t *testing.T) {
	v, err := Parse([]byte(`{"zeta": 1, "alpha": {"y": true, "x": null}, "mid": "s"}`))
	require.NoError(t, err)

	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, v.Keys())

	nested, ok := v.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, []string{"y", "x"}, nested.Keys())
}

func TestParse_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind Kind
	}{
		{"null", `null`, KindNull},
		{"true", `true`, KindBool},
		{"integer", `42`, KindNumber},
		{"float", `-1.5e10`, KindNumber},
		{"string", `"hello"`, KindString},
		{"empty array", `[]`, KindArray},
		{"empty object", `{}`, KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(out))
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a":}`, `[1,]`, `{"a":1} trailing`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestValue_NumberLiteralRoundTrip(t *testing.T) {
	in := `{"big":12345678901234567890,"exact":0.10000000000000000555}`
	v, err := Parse([]byte(in))
	require.NoError(t, err)

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, in, string(out))

	n, ok := mustGet(t, v, "big").AsNumber()
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890", n.String())
}

func TestValue_MarshalKeepsOrder(t *testing.T) {
	v := Object(
		Member{Key: "b", Value: String("x")},
		Member{Key: "a", Value: Array(Bool(true), Null(), Number("3"))},
	)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"b":"x","a":[true,null,3]}`, string(out))
}

func TestValue_Accessors(t *testing.T) {
	v, err := Parse([]byte(`{"metadata":{"source":{"service":"s3"}},"list":[1,2]}`))
	require.NoError(t, err)

	svc, ok := v.Lookup("metadata", "source", "service")
	require.True(t, ok)
	s, ok := svc.AsString()
	require.True(t, ok)
	assert.Equal(t, "s3", s)

	_, ok = v.Lookup("metadata", "missing")
	assert.False(t, ok)

	list := mustGet(t, v, "list")
	assert.Equal(t, 2, list.Len())
	assert.Len(t, list.Elements(), 2)
	assert.Nil(t, list.Members())

	_, ok = list.AsString()
	assert.False(t, ok)
	_, ok = String("x").AsBool()
	assert.False(t, ok)
}

func TestEqualAndEquivalent(t *testing.T) {
	a, _ := Parse([]byte(`{"a":1,"b":{"c":2,"d":3}}`))
	b, _ := Parse([]byte(`{"b":{"d":3,"c":2},"a":1}`))
	c, _ := Parse([]byte(`{"a":1,"b":{"c":2,"d":4}}`))

	assert.False(t, Equal(a, b), "member order differs")
	assert.True(t, Equivalent(a, b))
	assert.False(t, Equivalent(a, c))
	assert.True(t, Equal(a, a))

	arr1, _ := Parse([]byte(`[1,2]`))
	arr2, _ := Parse([]byte(`[2,1]`))
	assert.False(t, Equivalent(arr1, arr2), "array order matters")
}

func TestValue_Indent(t *testing.T) {
	v := Object(Member{Key: "a", Value: Number("1")})
	assert.Equal(t, "{\n  \"a\": 1\n}", v.Indent())
}

func mustGet(t *testing.T, v Value, key string) Value {
	t.Helper()
	out, ok := v.Get(key)
	require.True(t, ok, "missing key %q", key)
	return out
}
