package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	listing "plant-console/internal/listing/domain"
)

func TestLoadScreens_Defaults(t *testing.T) {
	screens, err := LoadScreens("")
	require.NoError(t, err)
	for _, name := range []string{"users", "stations", "companies", "inverters", "faults"} {
		screen, ok := screens[name]
		require.True(t, ok, name)
		assert.NoError(t, screen.Validate())
	}
	assert.Equal(t, listing.SortSpec{Field: "id", Direction: listing.Desc}, screens["users"].DefaultSort)
	assert.Equal(t, listing.RuleGrouped, screens["users"].Rules["username"].Rule)
}

func TestLoadScreens_MergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screens.yaml")
	data := []byte(`
screens:
  - name: users
    page_size: 50
    rules:
      plant_capacity:
        rule: numeric
        default_direction: desc
  - name: collectors
    feed: inverters
    search_fields: [collector_sn]
    default_sort:
      field: collector_sn
      direction: asc
    partitions:
      - name: all
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	screens, err := LoadScreens(path)
	require.NoError(t, err)

	users := screens["users"]
	assert.Equal(t, 50, users.PageSize)
	assert.Equal(t, listing.RuleNumeric, users.Rules["plant_capacity"].Rule)
	assert.Equal(t, listing.RuleGrouped, users.Rules["username"].Rule)
	assert.Len(t, users.Partitions, 4)

	collectors := screens["collectors"]
	assert.Equal(t, FeedInverters, collectors.Feed)
	assert.Equal(t, "id", collectors.IDField)
	assert.Equal(t, listing.DefaultPageSize, collectors.PageSize)
	assert.Equal(t, "collector_sn", collectors.DefaultSort.Field)
}

func TestParseScreens_RejectsUnknownRule(t *testing.T) {
	data := []byte(`
screens:
  - name: users
    rules:
      username:
        rule: fuzzy
`)
	_, err := ParseScreens(data, DefaultScreens())
	assert.ErrorIs(t, err, ErrInvalidScreen)
}

func TestScreen_ResolvePartition(t *testing.T) {
	stations := DefaultScreens()["stations"]

	for input, want := range map[string]string{
		"standby": "all",
		"Warning": "alarm",
		"fault":   "offline",
		"normal":  "normal",
	} {
		got, err := stations.ResolvePartition(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	assert.Equal(t, "offline_plant", stations.Bucket("offline"))
	assert.Equal(t, "0", DefaultScreens()["faults"].Bucket("going"))
}
