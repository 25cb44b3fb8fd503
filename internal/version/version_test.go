package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareOrdering(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.8.3", "1.8", 1},
		{"1.8", "1.8.3", -1},
		{"1.8.3", "1.8.3", 0},
		{"2.0", "1.9.9", 1},
		{"1.0.0-rc1", "1.0.0-rc1", 0},
		{"1.0.0-rc1", "1.0.0", 1}, // "0-rc1" > "0" lexicographically as strings
	}
	for _, c := range cases {
		got := Compare(Parse(c.a), Parse(c.b))
		assert.Equalf(t, c.want, got, "Compare(%q, %q)", c.a, c.b)
	}
}

// P2: exactly one of a<b, a==b, a>b holds.
func TestTrichotomy(t *testing.T) {
	versions := []string{"1.8.3", "1.8", "2.0", "1.9.9", "4.3.1", "1.6.5"}
	for _, a := range versions {
		for _, b := range versions {
			lt, err := Test(a, OpLT, b)
			require.NoError(t, err)
			eq, err := Test(a, OpEQ, b)
			require.NoError(t, err)
			gt, err := Test(a, OpGT, b)
			require.NoError(t, err)
			count := 0
			for _, v := range []bool{lt, eq, gt} {
				if v {
					count++
				}
			}
			assert.Equalf(t, 1, count, "trichotomy failed for %q vs %q", a, b)
		}
	}
}

func TestEqualNoZeroPadding(t *testing.T) {
	ok, err := Test("1.8", OpEQ, "1.8.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGE(t *testing.T) {
	ok, err := Test("1.8.3", OpGE, "1.8")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReservedOperator(t *testing.T) {
	_, err := Test("1.0", OpRE, "1.0")
	require.Error(t, err)
}
