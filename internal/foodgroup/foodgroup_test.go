// internal/foodgroup/foodgroup_test.go
package foodgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	tbl := Default()

	require.Equal(t, 20, tbl.Len())
	ids := tbl.IDs()
	assert.Equal(t, 1, ids[0])
	assert.Equal(t, 20, ids[len(ids)-1])

	oil, err := tbl.Lookup(9)
	require.NoError(t, err)
	assert.Equal(t, 1.0, oil.LipidPerG)
	assert.Equal(t, "aceites", oil.Name)
}

func TestLookupUnknownKeepsID(t *testing.T) {
	g, err := Default().Lookup(99)

	require.ErrorIs(t, err, ErrUnknownGroup)
	assert.Equal(t, 99, g.ID)
	assert.Zero(t, g.CarbPerG)
}

func TestNilTableLookup(t *testing.T) {
	var tbl *Table
	_, err := tbl.Lookup(1)
	assert.ErrorIs(t, err, ErrUnknownGroup)
	assert.Zero(t, tbl.Len())
	assert.Nil(t, tbl.IDs())
}

func TestParseRejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate id",
			yaml: "groups:\n  - {id: 1, name: a}\n  - {id: 1, name: b}\n",
			want: "duplicate",
		},
		{
			name: "negative density",
			yaml: "groups:\n  - {id: 2, name: a, carb_per_g: -0.1}\n",
			want: "negative",
		},
		{
			name: "not yaml",
			yaml: "groups: [",
			want: "decode yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups:\n  - {id: 42, name: test, protein_per_g: 0.5}\n"), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)

	g, err := tbl.Lookup(42)
	require.NoError(t, err)
	assert.Equal(t, 0.5, g.ProteinPerG)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
