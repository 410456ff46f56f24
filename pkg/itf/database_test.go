package itf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeDBName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"TestPgStore_UpsertAndQuery", "testpgstore_upsertandquery"},
		{"TestX/sub case-1 (a.b)", "testx_sub_case_1_a_b"},
		{"///", "test_db"},
		{"1st", "t_1st"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, sanitizeDBName(tc.in), tc.in)
	}
}

func TestSanitizeDBName_LongNamesStayUnique(t *testing.T) {
	base := "Test" + strings.Repeat("VeryLongSubtestName", 5)
	a := sanitizeDBName(base + "/one")
	b := sanitizeDBName(base + "/two")
	require.LessOrEqual(t, len(a), maxDBNameLength)
	require.LessOrEqual(t, len(b), maxDBNameLength)
	require.NotEqual(t, a, b)
}
