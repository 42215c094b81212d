package discovery

import (
	"encoding/json"

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/mqtt"
)

// Switch command payloads. States use catalog.StateOn/StateOff.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

type deviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

type originConfig struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw_version,omitempty"`
	SupportURL string `json:"support_url,omitempty"`
}

// entityConfig is the Home Assistant MQTT discovery payload of one entity.
type entityConfig struct {
	Name           string `json:"name"`
	UniqueID       string `json:"unique_id"`
	ObjectID       string `json:"object_id"`
	Icon           string `json:"icon,omitempty"`
	EntityCategory string `json:"entity_category,omitempty"`

	Device deviceConfig  `json:"device"`
	Origin *originConfig `json:"origin,omitempty"`

	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`

	StateTopic   string `json:"state_topic"`
	CommandTopic string `json:"command_topic"`

	// select
	Options []string `json:"options,omitempty"`

	// number
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step float64  `json:"step,omitempty"`
	Unit string   `json:"unit_of_measurement,omitempty"`
	Mode string   `json:"mode,omitempty"`

	// switch
	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`
	StateOn    string `json:"state_on,omitempty"`
	StateOff   string `json:"state_off,omitempty"`
}

func buildConfig(def catalog.Definition, topics mqtt.Topics, version string) entityConfig {
	cfg := entityConfig{
		Name:           def.Name,
		UniqueID:       def.ID,
		ObjectID:       def.ID,
		Icon:           def.Icon,
		EntityCategory: def.Category,
		Device: deviceConfig{
			Identifiers:  []string{catalog.MacsDevice.Identifier},
			Name:         catalog.MacsDevice.Name,
			Manufacturer: catalog.MacsDevice.Manufacturer,
			Model:        catalog.MacsDevice.Model,
			SWVersion:    version,
		},
		Origin:              &originConfig{Name: "ha-macs", SWVersion: version},
		AvailabilityTopic:   topics.Availability(),
		PayloadAvailable:    mqtt.PayloadOnline,
		PayloadNotAvailable: mqtt.PayloadOffline,
		StateTopic:          topics.State(def.ID),
		CommandTopic:        topics.Command(def.ID),
	}

	switch c := def.Constraint.(type) {
	case catalog.Enum:
		cfg.Options = c.Options
	case catalog.Range:
		lo, hi := c.Min, c.Max
		cfg.Min, cfg.Max = &lo, &hi
		cfg.Step = c.Step
		cfg.Unit = c.Unit
		cfg.Mode = c.Mode
	case catalog.Toggle:
		cfg.PayloadOn, cfg.PayloadOff = PayloadOn, PayloadOff
		cfg.StateOn, cfg.StateOff = catalog.StateOn, catalog.StateOff
	}
	return cfg
}

// ConfigPayload renders the discovery payload of def.
func ConfigPayload(def catalog.Definition, topics mqtt.Topics, version string) ([]byte, error) {
	return json.Marshal(buildConfig(def, topics, version))
}
