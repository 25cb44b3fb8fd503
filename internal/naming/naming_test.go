package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P1: parseTriple(name) joined with '_' reproduces the name.
func TestParseTripleRoundtrip(t *testing.T) {
	names := []string{
		"hello_1.0_linux_x86",
		"openmpi_1.6.5_linux26-x86-64",
		"netcdf_4.3.1-rc1_all",
		"a_b_c_d_e",
	}
	for _, n := range names {
		triple, err := ParseTriple(n)
		require.NoErrorf(t, err, "parsing %q", n)
		assert.Equal(t, n, triple.Name())
	}
}

func TestParseTripleFields(t *testing.T) {
	triple, err := ParseTriple("hello_1.0_linux_x86")
	require.NoError(t, err)
	assert.Equal(t, "hello", triple.Short)
	assert.Equal(t, "1.0", triple.Version)
	assert.Equal(t, "linux_x86", triple.Platform)
}

func TestParseTripleRejectsMalformed(t *testing.T) {
	for _, n := range []string{"", "noplatform", "a_b"} {
		_, err := ParseTriple(n)
		require.Errorf(t, err, "expected error parsing %q", n)
	}
}

func TestSplitPkgRef(t *testing.T) {
	ref, err := SplitPkgRef("/tmp/dom/hello_1.0_linux_x86")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dom", ref.DomPath)
	assert.Equal(t, "hello_1.0_linux_x86", ref.Name)
	assert.Equal(t, "linux_x86", ref.Platform)
}

func TestSplitPkgRefNoDomPath(t *testing.T) {
	ref, err := SplitPkgRef("hello_1.0_linux")
	require.NoError(t, err)
	assert.Equal(t, "", ref.DomPath)
	assert.Equal(t, "linux", ref.Platform)
}
