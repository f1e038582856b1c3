package config

import "encoding/json"

// parseNodeDeps decodes the {pkg: versionSpec} mapping accepted by the
// env installer (spec §4.5).
func parseNodeDeps(raw string) (map[string]string, error) {
	var deps map[string]string
	if err := json.Unmarshal([]byte(raw), &deps); err != nil {
		return nil, err
	}
	return deps, nil
}
