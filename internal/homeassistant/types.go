package homeassistant

import (
	"encoding/json"
	"strings"
)

// FlexibleIdentifier unmarshals from either a JSON string or a number.
// Older Lovelace resource collections use numeric ids.
type FlexibleIdentifier string

// UnmarshalJSON implements json.Unmarshaler.
func (fi *FlexibleIdentifier) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*fi = FlexibleIdentifier(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*fi = FlexibleIdentifier(num.String())
		return nil
	}

	*fi = ""
	return nil
}

// String returns the identifier as a string.
func (fi FlexibleIdentifier) String() string {
	return string(fi)
}

// EntityRegistryEntry is one row of config/entity_registry/list.
type EntityRegistryEntry struct {
	EntityID     string `json:"entity_id"`
	UniqueID     string `json:"unique_id,omitempty"`
	Platform     string `json:"platform"`
	DeviceID     string `json:"device_id,omitempty"`
	DisabledBy   string `json:"disabled_by,omitempty"`
	Name         string `json:"name,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
}

// Domain returns the entity platform part of the entity id.
func (e EntityRegistryEntry) Domain() string {
	domain, _, found := strings.Cut(e.EntityID, ".")
	if !found {
		return ""
	}
	return domain
}

// LovelaceInfo is the result of lovelace/info.
type LovelaceInfo struct {
	Mode         string `json:"mode"`
	ResourceMode string `json:"resource_mode"`
}

// YAMLResources reports whether resources are managed in YAML and thus read-only.
func (i LovelaceInfo) YAMLResources() bool {
	return i.ResourceMode == "yaml"
}

// LovelaceResource is one registered frontend resource.
type LovelaceResource struct {
	ID   FlexibleIdentifier `json:"id"`
	Type string             `json:"type"`
	URL  string             `json:"url"`
}
