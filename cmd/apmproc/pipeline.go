package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/apm"
	"github.com/opd-ai/apm/dsp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// matchRate converts far to rate, keeping its channel layout.
func matchRate(far *clip, rate int) (*clip, error) {
	if far.rate == rate {
		return far, nil
	}

	rs, err := dsp.NewResampler(dsp.ResamplerConfig{
		InputRate:  uint32(far.rate),
		OutputRate: uint32(rate),
		Channels:   far.channels,
	})
	if err != nil {
		return nil, fmt.Errorf("far-end resampler: %w", err)
	}

	// Feed in 10 ms blocks so the output tracks the stream ratio.
	block := apm.StreamDescriptor{SampleRate: far.rate, Channels: far.channels}.Samples()
	if block == 0 {
		block = far.channels
	}
	out := make([]int16, 0, rs.CalculateOutputSize(len(far.samples)/far.channels)*far.channels)
	for start := 0; start < len(far.samples); start += block {
		end := min(start+block, len(far.samples))
		converted, err := rs.Resample(far.samples[start:end])
		if err != nil {
			return nil, fmt.Errorf("resample far-end: %w", err)
		}
		out = append(out, converted...)
	}

	return &clip{samples: out, rate: rate, channels: far.channels}, nil
}

// frameAt returns a copy of frame n of samples, zero padded to frameLen.
func frameAt(samples []int16, n, frameLen int) []int16 {
	frame := make([]int16, frameLen)
	start := n * frameLen
	if start < len(samples) {
		copy(frame, samples[start:min(start+frameLen, len(samples))])
	}
	return frame
}

func frameCount(samples, frameLen int) int {
	return (samples + frameLen - 1) / frameLen
}

// tolerable reports whether err may be ignored by the pipeline.
func tolerable(err error) bool {
	return err == nil || errors.Is(err, apm.ErrBadStreamParameter)
}

// processClips runs near through proc with far as the echo reference. A
// render goroutine feeds the reverse stream and a capture goroutine the
// forward stream; they hand frames over in lockstep so far frame n always
// reaches the engine right before near frame n.
func processClips(ctx context.Context, proc *apm.Processor, near, far *clip, log *logrus.Logger) (*clip, error) {
	nearDesc := apm.StreamDescriptor{SampleRate: near.rate, Channels: near.channels}
	frameLen := nearDesc.Samples()
	if frameLen == 0 {
		return nil, fmt.Errorf("near-end rate %d Hz is too low for 10 ms frames", near.rate)
	}

	nearFrames := frameCount(len(near.samples), frameLen)
	out := make([]int16, nearFrames*frameLen)

	var farDesc apm.StreamDescriptor
	var farLen, shared int
	if far != nil {
		farDesc = apm.StreamDescriptor{SampleRate: far.rate, Channels: far.channels}
		farLen = farDesc.Samples()
		shared = min(frameCount(len(far.samples), farLen), nearFrames)
	}

	fed := make(chan int, 1)
	done := make(chan struct{}, 1)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for n := 0; n < shared; n++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if n > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-done:
				}
			}

			if err := proc.ProcessReverseStream(farDesc, frameAt(far.samples, n, farLen)); !tolerable(err) {
				return fmt.Errorf("far frame %d: %w", n, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case fed <- n:
			}
		}
		return nil
	})

	g.Go(func() error {
		for n := 0; n < nearFrames; n++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if n < shared {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-fed:
				}
			}

			frame := frameAt(near.samples, n, frameLen)
			if err := proc.ProcessStream(nearDesc, frame); !tolerable(err) {
				return fmt.Errorf("near frame %d: %w", n, err)
			}
			copy(out[n*frameLen:], frame)

			if n+1 < shared {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case done <- struct{}{}:
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"function":      "processClips",
		"near_frames":   nearFrames,
		"far_frames":    shared,
		"engine_builds": proc.EngineBuilds(),
	}).Info("Processing finished")

	return &clip{
		samples:  out[:len(near.samples)],
		rate:     near.rate,
		channels: near.channels,
	}, nil
}
