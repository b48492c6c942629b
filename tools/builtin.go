package tools

import (
	"context"
	"fmt"
	"strings"
)

// Builtins returns the stock tools. They report what they would do rather
// than reach real services.
func Builtins() []Tool {
	return []Tool{
		QueryWeather(),
		ToggleLight(),
		PlaySpotify(),
	}
}

func QueryWeather() Tool {
	return NewTool("query_weather", "Look up the current weather for a place",
		[]Parameter{
			{Name: "location", Description: "City or place name", Required: true},
		},
		func(_ context.Context, parameters map[string]string) (string, error) {
			return fmt.Sprintf("Current weather in %s: 20°C, partly cloudy.", parameters["location"]), nil
		})
}

func ToggleLight() Tool {
	return NewTool("toggle_light", "Switch a light on or off",
		[]Parameter{
			{Name: "device_name", Description: "Name of the light", Required: true},
			{Name: "state", Description: `Either "on" or "off"`, Required: true},
		},
		func(_ context.Context, parameters map[string]string) (string, error) {
			state := strings.ToLower(strings.TrimSpace(parameters["state"]))
			if state != "on" && state != "off" {
				return "", fmt.Errorf("state must be on or off, got %q", parameters["state"])
			}

			return fmt.Sprintf("Set light '%s' to state '%s'.", parameters["device_name"], state), nil
		})
}

func PlaySpotify() Tool {
	return NewTool("play_spotify", "Play a song on Spotify",
		[]Parameter{
			{Name: "song_name", Description: "Title of the song", Required: true},
			{Name: "artist", Description: "Performing artist"},
		},
		func(_ context.Context, parameters map[string]string) (string, error) {
			if artist := parameters["artist"]; artist != "" {
				return fmt.Sprintf("Playing '%s' by '%s' on Spotify.", parameters["song_name"], artist), nil
			}

			return fmt.Sprintf("Playing '%s' on Spotify.", parameters["song_name"]), nil
		})
}
