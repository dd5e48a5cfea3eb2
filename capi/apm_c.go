package main

/*
#include <stdint.h>
#include <stdbool.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/opd-ai/apm"
	"github.com/opd-ai/apm/dsp"
	"github.com/sirupsen/logrus"
)

func main() {} // Required for c-shared build mode

// The C surface drives one process-wide Processor. It is created on first
// use and never replaced; every call is serialized by its lock.
var (
	procOnce sync.Once
	proc     *apm.Processor
	procErr  error
)

// newProcessor builds a Processor whose processor and engine both log to
// the standard logger, so ap_setup's log verbosity applies process-wide.
func newProcessor() (*apm.Processor, error) {
	std := logrus.StandardLogger()
	return apm.NewProcessor(dsp.NewFactory(dsp.WithLogger(std)), apm.WithLogger(std))
}

// current returns the process-wide Processor.
func current() (*apm.Processor, error) {
	procOnce.Do(func() {
		proc, procErr = newProcessor()
		if procErr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "current",
				"error":    procErr.Error(),
			}).Error("Failed to create audio processor")
		}
	})
	return proc, procErr
}

// Static message strings handed out by ap_error_message. They are
// allocated once and never freed.
var (
	cMessages map[apm.Status]*C.char
	cUnknown  *C.char
)

func init() {
	cMessages = make(map[apm.Status]*C.char, len(apm.Statuses()))
	for _, code := range apm.Statuses() {
		cMessages[code] = C.CString(apm.ErrorMessage(code))
	}
	cUnknown = C.CString(apm.UnknownErrorMessage)
}

// setup translates the C selectors and stages the configuration.
func setup(rate int, echo, noise bool, level int, gain bool, verbosity int) apm.Status {
	nsLevel, err := apm.NoiseSuppressionLevelOf(level)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ap_setup",
			"error":    err.Error(),
		}).Error("Invalid noise suppression level")
		return apm.StatusOf(err)
	}
	severity, err := apm.LogSeverityOf(verbosity)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ap_setup",
			"error":    err.Error(),
		}).Error("Invalid log verbosity")
		return apm.StatusOf(err)
	}

	p, err := current()
	if err != nil {
		return apm.StatusOf(err)
	}

	return apm.StatusOf(p.Configure(apm.ProcessingConfig{
		ProcessingRate:        rate,
		EchoCancelEnabled:     echo,
		NoiseSuppressEnabled:  noise,
		NoiseSuppressLevel:    nsLevel,
		GainControllerEnabled: gain,
		LogVerbosity:          severity,
	}))
}

func teardown() {
	p, err := current()
	if err != nil {
		return
	}
	if err := p.Teardown(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ap_delete",
			"error":    err.Error(),
		}).Warn("Engine teardown reported an error")
	}
}

func setDelay(delayMs int) {
	p, err := current()
	if err != nil {
		return
	}
	if err := p.SetStreamDelay(delayMs); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ap_delay",
			"delay_ms": delayMs,
			"status":   int(apm.StatusOf(err)),
		}).Warn("Stream delay not applied as requested")
	}
}

// processFrame validates the C arguments, views data as one 10 ms frame of
// rate/100*channels samples and runs it in the given direction. Argument
// errors are reported before data is touched.
func processFrame(direction string, rate, channels int, data unsafe.Pointer) apm.Status {
	switch {
	case data == nil:
		return apm.StatusNullPointer
	case rate <= 0:
		return apm.StatusBadSampleRate
	case channels <= 0:
		return apm.StatusBadNumberChannels
	}

	desc := apm.StreamDescriptor{SampleRate: rate, Channels: channels}
	n := desc.Samples()
	if n <= 0 {
		return apm.StatusBadDataLength
	}
	pcm := unsafe.Slice((*int16)(data), n)

	p, err := current()
	if err != nil {
		return apm.StatusOf(err)
	}

	if direction == apm.DirectionReverse {
		return apm.StatusOf(p.ProcessReverseStream(desc, pcm))
	}
	return apm.StatusOf(p.ProcessStream(desc, pcm))
}

func messageOf(code int) *C.char {
	if msg, ok := cMessages[apm.Status(code)]; ok {
		return msg
	}
	return cUnknown
}

// ap_setup stages a processing configuration. The engine is built by the
// next stream or delay call.
//
//export ap_setup
func ap_setup(rate C.int, echo C.bool, noise C.bool, level C.int, gain C.bool, verbosity C.int) C.int {
	return C.int(setup(int(rate), bool(echo), bool(noise), int(level), bool(gain), int(verbosity)))
}

// ap_delete releases the engine. The configuration is kept.
//
//export ap_delete
func ap_delete() {
	teardown()
}

// ap_delay reports the render-to-capture delay in milliseconds.
//
//export ap_delay
func ap_delay(delayMs C.int) {
	setDelay(int(delayMs))
}

// ap_process_reverse feeds one far-end frame.
//
//export ap_process_reverse
func ap_process_reverse(rate C.int, channels C.int, data *C.int16_t) C.int {
	return C.int(processFrame(apm.DirectionReverse, int(rate), int(channels), unsafe.Pointer(data)))
}

// ap_process processes one near-end frame in place.
//
//export ap_process
func ap_process(rate C.int, channels C.int, data *C.int16_t) C.int {
	return C.int(processFrame(apm.DirectionForward, int(rate), int(channels), unsafe.Pointer(data)))
}

// ap_error_message returns a static string describing code.
//
//export ap_error_message
func ap_error_message(code C.int) *C.char {
	return messageOf(int(code))
}

// errorMessage is the Go view of ap_error_message.
func errorMessage(code int) string {
	return C.GoString(messageOf(code))
}
