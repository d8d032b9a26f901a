// Package main is the lights plugin. It turns a connection level into colors
// for an LED strip split between the two people: each half starts in its own
// color and the halves blend together as the score rises.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action     string          `json:"action"`
	Level      string          `json:"level"`
	Score      float64         `json:"score"`
	HeartRateA float64         `json:"heart_rate_a"`
	HeartRateB float64         `json:"heart_rate_b"`
	Timestamp  time.Time       `json:"timestamp"`
	Config     json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-binding plugin configuration.
type Config struct {
	LEDCount int `json:"led_count"`
	// Pulse dims each half to its person's heartbeat. As the score rises
	// both halves drift toward the shared average beat.
	Pulse bool `json:"pulse"`
}

// RGB is one LED color.
type RGB [3]int

// Palette is the pair of colors for person A's and person B's half.
type Palette struct {
	A RGB `json:"a"`
	B RGB `json:"b"`
}

// Frame is the plugin output for set_palette.
type Frame struct {
	Palette
	Pixels     []RGB       `json:"pixels"`
	Brightness *Brightness `json:"brightness,omitempty"`
}

// Brightness is the heartbeat level applied to each half.
type Brightness struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

const defaultLEDCount = 30

var palettes = map[string]Palette{
	"disconnected":     {A: RGB{30, 60, 200}, B: RGB{200, 40, 40}},
	"warming_up":       {A: RGB{100, 50, 180}, B: RGB{180, 50, 100}},
	"connecting":       {A: RGB{170, 50, 130}, B: RGB{170, 50, 130}},
	"deeply_connected": {A: RGB{220, 40, 80}, B: RGB{220, 40, 80}},
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	switch req.Action {
	case "set_palette":
		frame, err := handleSetPalette(req)
		if err != nil {
			writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
			return
		}
		writeSuccessResponse(frame)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

func handleSetPalette(req Request) (*Frame, error) {
	cfg := Config{LEDCount: defaultLEDCount}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.LEDCount <= 0 {
		cfg.LEDCount = defaultLEDCount
	}

	p, ok := palettes[req.Level]
	if !ok {
		p = palettes["disconnected"]
	}

	blend := req.Score
	if blend < 0 {
		blend = 0
	}
	if blend > 1 {
		blend = 1
	}

	frame := &Frame{Palette: p}
	bright := Brightness{A: 1, B: 1}
	if cfg.Pulse {
		at := req.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		pa, pb := Heartbeat(at, req.HeartRateA), Heartbeat(at, req.HeartRateB)
		avg := (pa + pb) / 2
		bright = Brightness{
			A: pa*(1-blend) + avg*blend,
			B: pb*(1-blend) + avg*blend,
		}
		frame.Brightness = &bright
	}

	half := cfg.LEDCount / 2
	frame.Pixels = make([]RGB, cfg.LEDCount)
	for i := range frame.Pixels {
		if i < half {
			frame.Pixels[i] = scale(lerp(p.A, p.B, blend), bright.A)
		} else {
			frame.Pixels[i] = scale(lerp(p.B, p.A, blend), bright.B)
		}
	}

	return frame, nil
}

// Heartbeat returns the brightness in [0, 1] of a double-bump heartbeat at
// time t for a rate in beats per minute. Without a rate it holds at 0.5.
func Heartbeat(t time.Time, bpm float64) float64 {
	if bpm <= 0 {
		return 0.5
	}
	period := 60 / bpm
	secs := float64(t.UnixNano()) / float64(time.Second)
	phase := math.Mod(secs, period) / period

	switch {
	case phase < 0.15:
		return 0.4 + 0.6*math.Sin(phase/0.15*math.Pi)
	case phase < 0.35:
		return 0.4 + 0.4*math.Sin((phase-0.15)/0.2*math.Pi)
	default:
		return 0.3 + 0.1*math.Sin((phase-0.35)/0.65*math.Pi)
	}
}

func scale(c RGB, f float64) RGB {
	if f == 1 {
		return c
	}
	var out RGB
	for i := range out {
		out[i] = int(float64(c[i]) * f)
	}
	return out
}

func lerp(from, to RGB, t float64) RGB {
	var out RGB
	for i := range out {
		out[i] = from[i] + int(float64(to[i]-from[i])*t)
	}
	return out
}

func writeSuccessResponse(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("failed to encode frame: %v", err))
		return
	}
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

func writeErrorResponse(msg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: msg})
}
