package main

import "time"

// FPSPreset defines a framerate preset
type FPSPreset struct {
	Value       int
	Name        string
	Description string
}

// FPS presets from lowest to highest. They pace Annex-B H.264 files, which
// carry no timing of their own.
var FPSPresets = []FPSPreset{
	{Value: 15, Name: "15", Description: "low power"},
	{Value: 24, Name: "24", Description: "cinematic"},
	{Value: 30, Name: "30", Description: "standard"},
	{Value: 60, Name: "60", Description: "smooth"},
}

// DefaultFPSIndex returns the index of the default FPS preset (30)
func DefaultFPSIndex() int {
	return 2
}

// FPSByValue finds an FPS preset by value
func FPSByValue(value int) *FPSPreset {
	for i := range FPSPresets {
		if FPSPresets[i].Value == value {
			return &FPSPresets[i]
		}
	}
	return nil
}

// normalizeFPS returns fps if it is a preset, the default otherwise
func normalizeFPS(fps int) int {
	if p := FPSByValue(fps); p != nil {
		return p.Value
	}
	return FPSPresets[DefaultFPSIndex()].Value
}

// frameDuration returns the duration of one frame at fps
func frameDuration(fps int) time.Duration {
	return time.Second / time.Duration(normalizeFPS(fps))
}
