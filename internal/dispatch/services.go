package dispatch

import (
	"github.com/zorak1103/ha-macs/internal/catalog"
)

// Service is one named service: an argument validator bound to a catalog entity.
type Service struct {
	Name        string
	Description string
	// Target is the catalog id the value is forwarded to.
	Target string
	// Arg is the name of the argument in structured calls (MCP, JSON payloads).
	Arg string

	def    catalog.Definition
	coerce Coercer
}

// Definition returns the target entity definition.
func (s Service) Definition() catalog.Definition {
	return s.def
}

// Coerce validates raw for this service.
func (s Service) Coerce(raw any) (any, error) {
	return s.coerce(raw)
}

type serviceSpec struct {
	name   string
	target string
	arg    string
	desc   string
}

// serviceTable maps service names to their target entity. Validators are
// derived from the target's constraint.
var serviceTable = []serviceSpec{
	{name: "set_mood", target: catalog.IDMood, arg: "mood", desc: "Set the character mood"},
	{name: "set_debug", target: catalog.IDDebug, arg: "option", desc: "Select which card script logs to the browser console"},
	{name: "set_brightness", target: catalog.IDBrightness, arg: "value", desc: "Set brightness (0-100)"},
	{name: "set_battery_charge", target: catalog.IDBatteryCharge, arg: "value", desc: "Set battery charge (0-100)"},
	{name: "set_temperature", target: catalog.IDTemperature, arg: "value", desc: "Set temperature (0-100)"},
	{name: "set_windspeed", target: catalog.IDWindSpeed, arg: "value", desc: "Set wind speed (0-100)"},
	{name: "set_precipitation", target: catalog.IDPrecipitation, arg: "value", desc: "Set precipitation (0-100)"},
	{name: "set_rainfall", target: catalog.IDPrecipitation, arg: "value", desc: "Set precipitation (0-100); alias of set_precipitation"},
	{name: "set_animations_enabled", target: catalog.IDAnimationsEnabled, arg: "value", desc: "Enable or disable card animations"},
	{name: "set_charging", target: catalog.IDCharging, arg: "value", desc: "Set whether the battery is charging"},
	{name: "set_snowing", target: "macs_weather_conditions_snowy", arg: "value", desc: "Turn the snowy weather condition on or off"},
}

func weatherSpecs() []serviceSpec {
	specs := make([]serviceSpec, 0, len(catalog.WeatherConditions))
	for _, w := range catalog.WeatherConditions {
		specs = append(specs, serviceSpec{
			name:   "set_weather_" + w.Key,
			target: w.ID(),
			arg:    "value",
			desc:   "Turn the " + w.Name + " weather condition on or off",
		})
	}
	return specs
}

// BuildServices resolves the service table against c. Entries whose target
// is missing from the catalog are skipped.
func BuildServices(c *catalog.Catalog) []Service {
	specs := append(append([]serviceSpec(nil), serviceTable...), weatherSpecs()...)

	out := make([]Service, 0, len(specs))
	for _, s := range specs {
		e, ok := c.Get(s.target)
		if !ok {
			continue
		}
		def := e.Definition()
		out = append(out, Service{
			Name:        s.name,
			Description: s.desc,
			Target:      s.target,
			Arg:         s.arg,
			def:         def,
			coerce:      CoercerFor(def.Constraint),
		})
	}
	return out
}
