package main

import "time"

var processStart = time.Now()

// nowMonoMs returns a monotonic millisecond counter anchored at process
// start, used to fill TimeSyncResponse.t_server_mono_ms.
func nowMonoMs() uint64 {
	return uint64(time.Since(processStart).Milliseconds())
}

// nowWallMs returns the current wall-clock time in Unix milliseconds.
func nowWallMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
