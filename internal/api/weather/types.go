package weather

// Forecast is the subset of the Open-Meteo forecast response the board uses.
type Forecast struct {
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Timezone       string         `json:"timezone"`
	CurrentWeather CurrentWeather `json:"current_weather"`
}

// CurrentWeather holds the current conditions.
type CurrentWeather struct {
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection float64 `json:"winddirection"`
	WeatherCode   int     `json:"weathercode"`
	IsDay         int     `json:"is_day"`
	Time          string  `json:"time"`
}

// Reading is the last known temperature and condition code.
type Reading struct {
	Temperature float64
	Code        int
}

// Description returns the human text of the reading's WMO weather code.
func (r Reading) Description() string {
	return Describe(r.Code)
}

var descriptions = map[int]string{
	0:  "Clear sky ☀️",
	1:  "Mainly clear 🌤️",
	2:  "Partly cloudy ⛅",
	3:  "Overcast ☁️",
	45: "Fog 🌫️",
	48: "Depositing rime fog 🌫️",
	51: "Drizzle: Light 🌧️",
	53: "Drizzle: Moderate 🌧️",
	55: "Drizzle: Dense 🌧️",
	56: "Freezing Drizzle: Light 🌨️",
	57: "Freezing Drizzle: Dense 🌨️",
	61: "Rain: Slight 🌧️",
	63: "Rain: Moderate 🌧️",
	65: "Rain: Heavy 🌧️",
	66: "Freezing Rain: Light 🌨️",
	67: "Freezing Rain: Heavy 🌨️",
	71: "Snow fall: Slight ❄️",
	73: "Snow fall: Moderate ❄️",
	75: "Snow fall: Heavy ❄️",
	77: "Snow grains ❄️",
	80: "Rain showers: Slight 🌦️",
	81: "Rain showers: Moderate 🌦️",
	82: "Rain showers: Violent 🌦️",
	85: "Snow showers: Slight 🌨️",
	86: "Snow showers: Heavy 🌨️",
	95: "Thunderstorm: Slight or moderate ⛈️",
	96: "Thunderstorm with slight hail ⛈️",
	99: "Thunderstorm with heavy hail ⛈️",
}

// Describe maps a WMO weather code to display text.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "Unknown weather status"
}
