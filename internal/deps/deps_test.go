package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S5.
func TestGenerateOrdersDependentsFirst(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("hdf5", "1.8.3", "", "", ""))
	require.NoError(t, m.Add("netcdf", "4.3.1", "hdf5>=1.8", "", ""))
	require.NoError(t, m.Add("openmpi", "1.6.5", "netcdf", "", ""))

	out, err := m.Generate([]string{"openmpi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"openmpi", "netcdf", "hdf5"}, out)
}

// P5: every name required by N appears later in the list, no dups.
func TestGenerateP5Property(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("hdf5", "1.8.3", "", "", ""))
	require.NoError(t, m.Add("netcdf", "4.3.1", "hdf5", "", ""))
	require.NoError(t, m.Add("netcdf-fortran", "4.4.2", "netcdf", "", ""))
	require.NoError(t, m.Add("openmpi", "1.6.5", "netcdf, netcdf-fortran", "", ""))

	out, err := m.Generate([]string{"openmpi"})
	require.NoError(t, err)

	pos := map[string]int{}
	for i, n := range out {
		pos[n] = i
	}
	assert.Len(t, out, len(pos), "no duplicates")

	m2 := NewManager()
	_ = m2
	for _, n := range out {
		for _, req := range m.requires[n] {
			if reqPos, ok := pos[req.Name]; ok {
				assert.Greaterf(t, reqPos, pos[n], "%s's requirement %s must appear later", n, req.Name)
			}
		}
	}
}

func TestAddDuplicateFails(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("hdf5", "1.8.3", "", "", ""))
	err := m.Add("hdf5", "1.9.0", "", "", "")
	require.Error(t, err)
}

func TestAliasProvidesSyntheticRequire(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("gcc", "4.9", "", "c-compiler, fortran-compiler", ""))

	out, err := m.Generate([]string{"c-compiler"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-compiler", "gcc"}, out)
}

func TestMissingProviderFails(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("netcdf", "4.3.1", "hdf5", "", ""))
	_, err := m.Generate([]string{"netcdf"})
	require.Error(t, err)
}

func TestUnresolvedVersionRequireFails(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("hdf5", "1.6.0", "", "", ""))
	require.NoError(t, m.Add("netcdf", "4.3.1", "hdf5>=1.8", "", ""))
	_, err := m.Generate([]string{"netcdf"})
	require.Error(t, err)
}

func TestConflictDetected(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("openmpi", "1.6.5", "", "", ""))
	require.NoError(t, m.Add("mpich", "3.2", "", "", "openmpi"))
	_, err := m.Generate([]string{"mpich"})
	require.Error(t, err)
}

func TestConflictAbsentProviderIsFine(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("mpich", "3.2", "", "", "openmpi"))
	out, err := m.Generate([]string{"mpich"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mpich"}, out)
}
