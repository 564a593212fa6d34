package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encoders lists both RFC 8785 writers; every ordering and escaping rule
// holds for both of them.
var encoders = []struct {
	name    string
	marshal func(any) ([]byte, error)
}{
	{"canonical", MarshalCanonical},
	{"wire", MarshalWire},
}

func TestEncodersShareFormatting(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"empty string", IRString(""), `""`},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bools", IRArray{IRBool(true), IRBool(false)}, "[true,false]"},
		{"empty containers", IRObject{"a": IRArray{}, "o": IRObject{}}, `{"a":[],"o":{}}`},
		{"sorted keys", IRObject{"title": IRString("t"), "body": IRString("b"), "author": IRNull{}}, `{"author":null,"body":"b","title":"t"}`},
		{"nested sorted keys", IRObject{"z": IRObject{"b": IRInt(2), "a": IRInt(1)}}, `{"z":{"a":1,"b":2}}`},
		{"utf16 key order", IRObject{"\uFB01": IRInt(2), "\U0001F600": IRInt(1)}, "{\"\U0001F600\":1,\"\uFB01\":2}"},
		{"no html escape", IRString(`<b>&</b>`), `"<b>&</b>"`},
		{"html in key", IRObject{"a<b": IRString("&")}, `{"a<b":"&"}`},
		{"control chars", IRString("line\nbreak\ttab\"q\\"), `"line\nbreak\ttab\"q\\"`},
		{"line separators literal", IRString("a\u2028b\u2029c"), "\"a\u2028b\u2029c\""},
		{"escaped backslash before u2028", IRString(`\u2028`), `"\\u2028"`},
		{"number literal", IRNumber("1.50"), "1.50"},
		{"big number literal", IRNumber("123456789012345678901234567890"), "123456789012345678901234567890"},
		{"go map", map[string]any{"b": "x", "a": int64(1), "c": true}, `{"a":1,"b":"x","c":true}`},
		{"go slice", []any{"x", 1, nil}, `["x",1,null]`},
	}
	for _, enc := range encoders {
		for _, tt := range tests {
			t.Run(enc.name+"/"+tt.name, func(t *testing.T) {
				got, err := enc.marshal(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(got))
			})
		}
	}
}

func TestEncodersRejectUnrepresentable(t *testing.T) {
	inputs := map[string]any{
		"float":             1.5,
		"nested float":      map[string]any{"score": 0.5},
		"bad number":        IRNumber("1.2.3"),
		"number as string":  IRNumber(`"1"`),
		"empty number":      IRNumber(""),
		"unsupported":       struct{}{},
		"float inside list": []any{"a", float32(2)},
	}
	for _, enc := range encoders {
		for name, in := range inputs {
			t.Run(enc.name+"/"+name, func(t *testing.T) {
				_, err := enc.marshal(in)
				assert.Error(t, err)
			})
		}
	}
}

// payload builds the shape BuildParameters sends: {"ctx": ..., "entry": ...}.
func payload(entry IRValue) IRObject {
	return NewIRObjectFromPairs(
		O("entry", entry),
		O("ctx", IRObject{
			"lifecycle": IRString(string(LifecycleChain)),
			"action":    IRString(string(ActionCommit)),
			"sources":   IRArray{IRString("agent-1")},
		}),
	)
}

func TestMarshalWirePayload(t *testing.T) {
	entry, err := ParseDocument([]byte(`{"title":"hi","stats":{"views":12345678901234567890,"ratio":0.25},"tags":["a"]}`))
	require.NoError(t, err)

	got, err := MarshalWire(payload(entry))
	require.NoError(t, err)
	assert.Equal(t,
		`{"ctx":{"action":"commit","lifecycle":"chain","sources":["agent-1"]},`+
			`"entry":{"stats":{"ratio":0.25,"views":12345678901234567890},"tags":["a"],"title":"hi"}}`,
		string(got))
}

func TestMarshalWireKeepsStringsAsSubmitted(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	got, err := MarshalWire(IRObject{"title": IRString(decomposed)})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"`+decomposed+`"}`, string(got))

	// Distinct keys that only differ in normalization stay distinct.
	entry := IRObject{composed: IRString("a"), decomposed: IRString("b")}
	got, err = MarshalWire(payload(entry))
	require.NoError(t, err)

	back, err := ParseDocument(got)
	require.NoError(t, err, "wire output never contains duplicate keys")
	assert.Equal(t, entry, back.(IRObject)["entry"])
}

func TestMarshalCanonicalNormalizes(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	a, err := MarshalCanonical(IRObject{composed: IRString(decomposed)})
	require.NoError(t, err)
	b, err := MarshalCanonical(IRObject{decomposed: IRString(composed)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"`+composed+`":"`+composed+`"}`, string(a))
}

func TestMarshalCanonicalSortsNormalizedKeys(t *testing.T) {
	// Decomposed "e\u0301" sorts before "f" as written but after it once
	// composed to "\u00e9".
	got, err := MarshalCanonical(IRObject{"e\u0301": IRInt(1), "f": IRInt(2)})
	require.NoError(t, err)
	assert.Equal(t, "{\"f\":2,\"\u00e9\":1}", string(got))
}

func TestMarshalCanonicalRejectsKeysThatNormalizeAlike(t *testing.T) {
	_, err := MarshalCanonical(payload(IRObject{"\u00E9": IRString("a"), "e\u0301": IRString("b")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "normalize to the same form")
}

func TestMarshalCanonicalIdempotent(t *testing.T) {
	docs := []string{
		`{"title":"hello","body":"x"}`,
		`{"n":1e400,"big":-98765432109876543210,"small":1.0}`,
		"{\"note\":\"cafe\u0301 \u2028 <ok>\"}",
		`[null,true,{"z":[],"a":{}}]`,
	}
	for _, doc := range docs {
		v, err := ParseDocument([]byte(doc))
		require.NoError(t, err, doc)

		first, err := MarshalCanonical(v)
		require.NoError(t, err)
		again, err := ParseDocument(first)
		require.NoError(t, err)
		second, err := MarshalCanonical(again)
		require.NoError(t, err)
		assert.Equal(t, first, second, doc)
	}
}

func TestMarshalWireRoundTripsParsedEntries(t *testing.T) {
	docs := []string{
		`{"title":"hello","tags":["a","b"],"score":1.5,"draft":false,"meta":null}`,
		"{\"title\":\"cafe\u0301\",\"caf\u00E9\":1}",
		"{\"body\":\"para\u2028graph\"}",
		`{"id":123456789012345678901234567890,"price":19.90,"exp":1E+2}`,
		`"just a string"`,
	}
	for _, doc := range docs {
		want, err := ParseDocument([]byte(doc))
		require.NoError(t, err, doc)

		wire, err := MarshalWire(want)
		require.NoError(t, err)
		got, err := ParseDocument(wire)
		require.NoError(t, err)
		assert.Equal(t, want, got, doc)
	}
}

// FuzzMarshalWireRoundTrip checks that every parsed document survives the
// wire encoding unchanged.
func FuzzMarshalWireRoundTrip(f *testing.F) {
	f.Add(`{"title":"hi","body":"x"}`)
	f.Add(`[1,2.5,"three"]`)
	f.Add("{\"e\u0301\":1,\"\u00E9\":2}")
	f.Add(`{"nested":{"deep":{"value":123}}}`)

	f.Fuzz(func(t *testing.T, doc string) {
		want, err := ParseDocument([]byte(doc))
		if err != nil {
			t.Skip()
		}
		wire, err := MarshalWire(want)
		if err != nil {
			t.Skip()
		}
		got, err := ParseDocument(wire)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
