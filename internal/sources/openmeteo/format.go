package openmeteo

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatBlock renders the weather text block. Absent fields are left out.
func FormatBlock(label string, place Place, forecast Forecast) string {
	current := forecast.Current
	daily := forecast.Daily

	geo := place.Name
	if strings.TrimSpace(place.Admin1) != "" {
		geo += " / " + place.Admin1
	}

	lines := []string{
		"Weather (Open-Meteo) for: " + label,
		fmt.Sprintf("Geo: %s (%s, %s)", geo, formatNumber(place.Latitude), formatNumber(place.Longitude)),
	}
	if current.Temperature != nil {
		lines = append(lines, fmt.Sprintf("Current temp: %s°C", formatNumber(*current.Temperature)))
	}
	if current.ApparentTemperature != nil {
		lines = append(lines, fmt.Sprintf("Feels like: %s°C", formatNumber(*current.ApparentTemperature)))
	}
	if current.WindSpeed != nil {
		lines = append(lines, fmt.Sprintf("Wind: %s km/h", formatNumber(*current.WindSpeed)))
	}
	if current.Precipitation != nil {
		lines = append(lines, fmt.Sprintf("Current precipitation: %s mm", formatNumber(*current.Precipitation)))
	}
	low, high := first(daily.TemperatureMin), first(daily.TemperatureMax)
	if low != nil && high != nil {
		lines = append(lines, fmt.Sprintf("Today: %s°C ~ %s°C", formatNumber(*low), formatNumber(*high)))
	}
	if pop := first(daily.PrecipitationProbability); pop != nil {
		lines = append(lines, fmt.Sprintf("Today precip prob (max): %s%%", formatNumber(*pop)))
	}
	if sum := first(daily.PrecipitationSum); sum != nil {
		lines = append(lines, fmt.Sprintf("Today precip sum: %s mm", formatNumber(*sum)))
	}
	lines = append(lines, "Source: "+CanonicalLink)
	return strings.Join(lines, "\n")
}

func first(values []*float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
