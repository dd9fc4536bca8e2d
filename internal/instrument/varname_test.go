package instrument

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractVariable(t *testing.T) {
	cases := []struct {
		line   string
		want   string
		wantOK bool
	}{
		{"int y = __VERIFIER_nondet_int();", "y", true},
		{"    unsigned long n = __VERIFIER_nondet_ulong();", "n", true},
		{"x = __VERIFIER_nondet_char();", "x", true},
		{"\tint\tx\t=\t__VERIFIER_nondet_int();", "x", true},
		{"foo(__VERIFIER_nondet_int());", "", false},
		{"x = bar();", "", false},
		{"x=__VERIFIER_nondet_int();", "", false},
		{"= __VERIFIER_nondet_int();", "", false},
		{"int x =", "", false},
		{"int x = (int)__VERIFIER_nondet_uint();", "", false},
		{"a = b = __VERIFIER_nondet_int();", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractVariable(tc.line)
		require.Equal(t, tc.wantOK, ok, "line %q", tc.line)
		require.Equal(t, tc.want, got, "line %q", tc.line)
	}
}

func TestExtractVariableCustomPrefixes(t *testing.T) {
	got, ok := ExtractVariable("int v = nondet_int();", "__VERIFIER_nondet_", "nondet_")
	require.True(t, ok)
	require.Equal(t, "v", got)

	_, ok = ExtractVariable("int v = __VERIFIER_nondet_int();", "nondet_")
	require.False(t, ok)
}
