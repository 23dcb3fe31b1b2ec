package pipemap

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadMaterialLabels reads the optional material code → display name
// mapping. A missing file is not an error; callers degrade to showing raw
// codes.
func LoadMaterialLabels(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading material labels: %w", err)
	}

	var labels map[string]string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parsing material labels: %w", err)
	}
	return labels, nil
}

// DisplayName resolves a material code against the label lookup, falling
// back to the code itself.
func DisplayName(labels map[string]string, code string) string {
	if name, ok := labels[code]; ok && name != "" {
		return name
	}
	return code
}
