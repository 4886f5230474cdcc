package application

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	listing "plant-console/internal/listing/domain"
)

type screensFile struct {
	Screens []Screen `yaml:"screens"`
}

// LoadScreens returns the built-in screens overlaid with the YAML file at path.
// An empty path returns the built-ins.
func LoadScreens(path string) (map[string]Screen, error) {
	screens := DefaultScreens()
	if path == "" {
		return screens, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return screens, fmt.Errorf("listing: read screens: %w", err)
	}
	return ParseScreens(data, screens)
}

// ParseScreens overlays YAML screen definitions on base. Screens with a known
// name are merged field by field; new names are added whole.
func ParseScreens(data []byte, base map[string]Screen) (map[string]Screen, error) {
	var file screensFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("listing: parse screens: %w", err)
	}
	out := make(map[string]Screen, len(base)+len(file.Screens))
	for name, screen := range base {
		out[name] = screen
	}
	for _, override := range file.Screens {
		screen, ok := out[override.Name]
		if ok {
			screen = mergeScreen(screen, override)
		} else {
			screen = override
			if screen.IDField == "" {
				screen.IDField = "id"
			}
			if screen.PageSize == 0 {
				screen.PageSize = listing.DefaultPageSize
			}
		}
		if err := screen.Validate(); err != nil {
			return base, err
		}
		out[screen.Name] = screen
	}
	return out, nil
}

func mergeScreen(base, override Screen) Screen {
	if override.Feed != "" {
		base.Feed = override.Feed
	}
	if override.IDField != "" {
		base.IDField = override.IDField
	}
	if len(override.SearchFields) > 0 {
		base.SearchFields = override.SearchFields
	}
	if len(override.Rules) > 0 {
		rules := make(listing.Rules, len(base.Rules)+len(override.Rules))
		for field, rule := range base.Rules {
			rules[field] = rule
		}
		for field, rule := range override.Rules {
			rules[field] = rule
		}
		base.Rules = rules
	}
	if override.DefaultSort.Field != "" {
		base.DefaultSort = override.DefaultSort
	}
	if override.PageSize != 0 {
		base.PageSize = override.PageSize
	}
	if len(override.Partitions) > 0 {
		base.Partitions = override.Partitions
	}
	if len(override.FacetFields) > 0 {
		base.FacetFields = override.FacetFields
	}
	return base
}
