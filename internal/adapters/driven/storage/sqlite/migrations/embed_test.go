package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	all, err := All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, m := range all {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Up, m.Name)
		assert.NotEmpty(t, m.Down, m.Name)
	}
	assert.Equal(t, "003_maintenance", all[2].Name)
}

func TestLoad_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_b.up.sql":   {Data: []byte("B")},
		"010_b.down.sql": {Data: []byte("-B")},
		"002_a.up.sql":   {Data: []byte("A")},
		"002_a.down.sql": {Data: []byte("-A")},
		"README.md":      {Data: []byte("ignored")},
	}
	all, err := load(fsys)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Version)
	assert.Equal(t, 10, all[1].Version)
	assert.Equal(t, "-B", all[1].Down)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"missing down", fstest.MapFS{"001_a.up.sql": {Data: []byte("A")}}},
		{"bad name", fstest.MapFS{"init.up.sql": {Data: []byte("A")}, "init.down.sql": {}}},
		{"duplicate version", fstest.MapFS{
			"001_a.up.sql": {}, "001_a.down.sql": {},
			"001_b.up.sql": {}, "001_b.down.sql": {},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.fsys)
			assert.Error(t, err)
		})
	}
}
