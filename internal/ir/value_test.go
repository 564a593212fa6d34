package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	// Verify all types implement IRValue (compile-time check via assignment)
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRNumber("1.5")
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	// 'A' = 65, 'a' = 97
	expected := []string{"A", "AA", "Aa", "a", "aA", "aa"}
	assert.Equal(t, expected, obj.SortedKeys())
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+E000 encodes as a single UTF-16 unit 0xE000, U+10000 as the
	// surrogate pair 0xD800 0xDC00, so U+10000 sorts first in UTF-16
	// even though it sorts last in UTF-8.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	assert.Equal(t, []string{"\U00010000", "\uE000"}, obj.SortedKeys())
}

func TestCompareKeysRFC8785(t *testing.T) {
	assert.Equal(t, 0, compareKeysRFC8785("a", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "b"))
	assert.Equal(t, 1, compareKeysRFC8785("b", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "ab"), "prefix sorts first")
	assert.Equal(t, 1, compareKeysRFC8785("ab", "a"))
}

func TestParseDocumentTypes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected IRValue
	}{
		{"null", `null`, IRNull{}},
		{"string", `"hi"`, IRString("hi")},
		{"int", `42`, IRInt(42)},
		{"negative int", `-7`, IRInt(-7)},
		{"decimal", `19.99`, IRNumber("19.99")},
		{"exponent", `1e3`, IRNumber("1e3")},
		{"beyond int64", `18446744073709551616`, IRNumber("18446744073709551616")},
		{"bool", `true`, IRBool(true)},
		{"empty array", `[]`, IRArray{}},
		{"empty object", `{}`, IRObject{}},
		{
			"nested",
			`{"title":"hello","tags":["a","b"],"meta":{"votes":3,"score":0.5,"deleted":null}}`,
			IRObject{
				"title": IRString("hello"),
				"tags":  IRArray{IRString("a"), IRString("b")},
				"meta": IRObject{
					"votes":   IRInt(3),
					"score":   IRNumber("0.5"),
					"deleted": IRNull{},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := ParseDocument([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, val)
		})
	}
}

func TestParseDocumentRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"whitespace", "  \n\t"},
		{"not json", `this is not json`},
		{"truncated object", `{"title":`},
		{"unterminated array", `[1,2`},
		{"trailing value", `{"a":1} {"b":2}`},
		{"trailing garbage", `{"a":1}}`},
		{"duplicate key", `{"a":1,"a":2}`},
		{"nested duplicate key", `{"x":{"a":1,"a":1}}`},
		{"single quotes", `{'a':1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestParseDocumentAllowsSurroundingWhitespace(t *testing.T) {
	val, err := ParseDocument([]byte("\n  {\"a\": 1}\n"))
	require.NoError(t, err)
	assert.Equal(t, IRObject{"a": IRInt(1)}, val)
}

func TestToIR(t *testing.T) {
	vd := ValidationData{
		Lifecycle: LifecycleChain,
		Action:    ActionCommit,
		Sources:   []string{"agent-1"},
	}

	val, err := ToIR(vd)
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"lifecycle": IRString("chain"),
		"action":    IRString("commit"),
		"sources":   IRArray{IRString("agent-1")},
	}, val)
}

func TestToIRRejectsUnmarshalable(t *testing.T) {
	_, err := ToIR(make(chan int))
	assert.Error(t, err)
}

func TestMarshalIRValueRoundTrip(t *testing.T) {
	values := []IRValue{
		IRNull{},
		IRString("hello"),
		IRInt(-12),
		IRNumber("2.5"),
		IRBool(false),
		IRArray{IRInt(1), IRString("two"), IRNull{}},
		IRObject{"b": IRInt(1), "a": IRArray{IRBool(true)}},
	}

	for _, v := range values {
		data, err := MarshalIRValue(v)
		require.NoError(t, err)

		back, err := ParseDocument(data)
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{"z": IRInt(1), "a": IRObject{"n": IRNumber("0.25")}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"n":0.25},"z":1}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestIRObjectUnmarshalRejectsNonObject(t *testing.T) {
	var obj IRObject
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &obj))

	var arr IRArray
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &arr))
}

func TestHelperConstructors(t *testing.T) {
	obj := NewIRObjectFromPairs(
		O("title", IRString("hello")),
		O("votes", IRInt(5)),
	)

	assert.Equal(t, IRObject{"title": IRString("hello"), "votes": IRInt(5)}, obj)
}
