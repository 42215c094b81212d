package catalog

// Entity ids referenced outside the catalog (dispatch table, dashboard card).
const (
	IDMood              = "macs_mood"
	IDDebug             = "macs_debug"
	IDBrightness        = "macs_brightness"
	IDBatteryCharge     = "macs_battery_charge"
	IDTemperature       = "macs_temperature"
	IDWindSpeed         = "macs_windspeed"
	IDPrecipitation     = "macs_precipitation"
	IDAnimationsEnabled = "macs_animations_enabled"
	IDCharging          = "macs_charging"

	weatherConditionPrefix = "macs_weather_conditions_"
)

// Moods are the character moods the card can render.
var Moods = []string{
	"bored",
	"confused",
	"happy",
	"idle",
	"listening",
	"sleeping",
	"surprised",
	"thinking",
}

// DebugOptions selects which card script logs to the browser console.
var DebugOptions = []string{
	"None",
	"All",
	"MacsCard.js",
	"MacsCardEditor.js",
	"assistPipeline.js",
	"assistSatellite.js",
	"sensorHandler.js",
	"postmessage.js",
	"moods.js",
	"assist-bridge.js",
}

// WeatherCondition is one per-condition weather switch.
type WeatherCondition struct {
	// Key is the Home Assistant weather condition name in snake case.
	Key  string
	Name string
	Icon string
}

// ID returns the catalog id of the condition's switch.
func (w WeatherCondition) ID() string {
	return weatherConditionPrefix + w.Key
}

// WeatherConditions lists the weather switches in display order.
var WeatherConditions = []WeatherCondition{
	{Key: "snowy", Name: "Snowy", Icon: "mdi:snowflake"},
	{Key: "cloudy", Name: "Cloudy", Icon: "mdi:weather-cloudy"},
	{Key: "rainy", Name: "Rainy", Icon: "mdi:weather-rainy"},
	{Key: "windy", Name: "Windy", Icon: "mdi:weather-windy"},
	{Key: "sunny", Name: "Sunny", Icon: "mdi:weather-sunny"},
	{Key: "stormy", Name: "Stormy", Icon: "mdi:weather-lightning"},
	{Key: "foggy", Name: "Foggy", Icon: "mdi:weather-fog"},
	{Key: "hail", Name: "Hail", Icon: "mdi:weather-hail"},
	{Key: "lightning", Name: "Lightning", Icon: "mdi:weather-lightning"},
	{Key: "lightning_rainy", Name: "Lightning Rainy", Icon: "mdi:weather-lightning-rainy"},
	{Key: "partlycloudy", Name: "Partly Cloudy", Icon: "mdi:weather-partly-cloudy"},
	{Key: "pouring", Name: "Pouring", Icon: "mdi:weather-pouring"},
	{Key: "snowy_rainy", Name: "Snowy Rainy", Icon: "mdi:weather-snowy-rainy"},
	{Key: "clear_night", Name: "Clear Night", Icon: "mdi:weather-night"},
	{Key: "windy_variant", Name: "Windy Variant", Icon: "mdi:weather-windy-variant"},
	{Key: "exceptional", Name: "Exceptional", Icon: "mdi:alert-circle-outline"},
}

// Definitions returns the full M.A.C.S. entity catalog in registration order.
func Definitions() []Definition {
	defs := []Definition{
		{ID: IDMood, Name: "Mood", Icon: "mdi:emoticon", Constraint: Enum{Options: Moods}, Default: "idle"},
		{ID: IDBrightness, Name: "Brightness", Icon: "mdi:brightness-6", Constraint: Percent, Default: 100.0},
		{ID: IDBatteryCharge, Name: "Battery Charge", Icon: "mdi:battery", Constraint: Percent, Default: 100.0},
		{ID: IDTemperature, Name: "Temperature", Icon: "mdi:thermometer", Constraint: Percent, Default: 0.0},
		{ID: IDWindSpeed, Name: "Wind Speed", Icon: "mdi:weather-windy", Constraint: Percent, Default: 0.0},
		{ID: IDPrecipitation, Name: "Precipitation", Icon: "mdi:weather-rainy", Constraint: Percent, Default: 0.0},
		{ID: IDAnimationsEnabled, Name: "Animations Enabled", Icon: "mdi:animation", Constraint: Toggle{}, Default: true},
		{ID: IDCharging, Name: "Charging", Icon: "mdi:battery-charging", Constraint: Toggle{}, Default: false},
		{ID: IDDebug, Name: "Debug", Icon: "mdi:bug", Category: "config", Constraint: Enum{Options: DebugOptions}, Default: "None"},
	}

	for _, w := range WeatherConditions {
		defs = append(defs, Definition{
			ID:         w.ID(),
			Name:       w.Name,
			Icon:       w.Icon,
			Constraint: Toggle{},
			Default:    false,
		})
	}
	return defs
}
