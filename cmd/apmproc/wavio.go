package main

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// clip is an interleaved 16-bit PCM recording.
type clip struct {
	samples  []int16
	rate     int
	channels int
}

// readWAV decodes a 16-bit PCM WAV file.
func readWAV(path string) (*clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%q is not a valid WAV file", path)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%q: unsupported bit depth %d (need 16)", path, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%q: missing format chunk", path)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(max(min(v, math.MaxInt16), math.MinInt16))
	}

	return &clip{
		samples:  samples,
		rate:     buf.Format.SampleRate,
		channels: buf.Format.NumChannels,
	}, nil
}

// writeWAV encodes c as a 16-bit PCM WAV file at path.
func writeWAV(path string, c *clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	data := make([]int, len(c.samples))
	for i, v := range c.samples {
		data[i] = int(v)
	}

	enc := wav.NewEncoder(f, c.rate, 16, c.channels, 1)
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: c.channels, SampleRate: c.rate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err == nil {
		err = enc.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
