package mixer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

// SampleRate is the playback rate for all stems.
const SampleRate = 44100

// Stem file base names looked up in the stems directory.
const (
	HarmonyStem = "harmony"
	NeutralStem = "neutral"
	TensionStem = "tension"
)

// ErrStemNotFound is returned when a stem has no .wav or .ogg file.
var ErrStemNotFound = errors.New("stem not found")

type decodedStream interface {
	io.ReadSeeker
	Length() int64
}

// LoadStems builds a Mixer from harmony, neutral and tension files (.wav or
// .ogg) in dir. The stems loop forever and should share length and tempo.
func LoadStems(dir string) (*Mixer, error) {
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(SampleRate)
	}

	var players [3]*audio.Player
	for i, name := range []string{HarmonyStem, NeutralStem, TensionStem} {
		p, err := loadStem(ctx, dir, name)
		if err != nil {
			for _, prev := range players[:i] {
				prev.Close()
			}
			return nil, err
		}
		players[i] = p
	}

	return New(players[0], players[1], players[2]), nil
}

func loadStem(ctx *audio.Context, dir, name string) (*audio.Player, error) {
	path, err := findStem(dir, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stem %s: %w", name, err)
	}

	var stream decodedStream
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg":
		stream, err = vorbis.DecodeWithSampleRate(SampleRate, bytes.NewReader(data))
	default:
		stream, err = wav.DecodeWithSampleRate(SampleRate, bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode stem %s: %w", name, err)
	}

	p, err := ctx.NewPlayer(audio.NewInfiniteLoop(stream, stream.Length()))
	if err != nil {
		return nil, fmt.Errorf("failed to create player for %s: %w", name, err)
	}
	p.SetVolume(0)
	return p, nil
}

func findStem(dir, name string) (string, error) {
	for _, ext := range []string{".wav", ".ogg"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrStemNotFound, name, dir)
}
