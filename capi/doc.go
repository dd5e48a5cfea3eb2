// Package main provides C API bindings for the audio processing module,
// so native voice pipelines can run echo cancellation, noise suppression
// and gain control through a single process-wide processor.
//
// # Build Instructions
//
// To build as a C shared library:
//
//	go build -buildmode=c-shared -o libapm.so ./capi/
//
// This generates:
//   - libapm.so: The shared library
//   - libapm.h: Auto-generated C header file with function declarations
//
// # C API Usage
//
//	#include "libapm.h"
//
//	// 16 kHz processing, echo cancel and very high noise suppression on.
//	ap_setup(16000, true, true, 3, true, 0);
//	ap_delay(40);
//
//	int16_t render[160], capture[160];
//	while (running) {
//	    read_far_end(render);
//	    ap_process_reverse(16000, 1, render);
//
//	    read_microphone(capture);
//	    int rc = ap_process(16000, 1, capture);
//	    if (rc != 0) {
//	        fprintf(stderr, "apm: %s\n", ap_error_message(rc));
//	    }
//	}
//
//	ap_delete();
//
// Every buffer holds exactly one 10 ms frame of interleaved 16-bit samples:
// rate/100 samples per channel. ap_process rewrites the buffer in place;
// ap_process_reverse never modifies it.
//
// # Lifecycle
//
// ap_setup only stores the configuration. The engine is built on the next
// ap_process, ap_process_reverse or ap_delay call. Calling ap_setup again
// does not touch a live engine; call ap_delete first to have the next call
// rebuild it with the new configuration. Before the first ap_setup the
// stream calls are no-ops that return 0.
//
// # Return Codes
//
// Stream calls return 0 on success and a negative code otherwise, using the
// engine's error numbering (-1 unspecified through -13 bad stream parameter
// warning). ap_setup returns -6 when the noise suppression level (0..3) or
// log verbosity (0..4) is out of range. ap_error_message maps any code to a
// static string that must not be freed.
//
// # Thread Safety
//
// All entry points are serialized by one internal mutex. Render and capture
// threads may call ap_process_reverse and ap_process concurrently.
package main
