package main

import "time"

// sysClock satisfies peripheral.Clock with the runtime's monotonic
// wall clock, the same role cmd/controller/platform.go's bare
// time.Now() plays for that command's Platform.Now method.
type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now() }

func (sysClock) ElapsedSince(t time.Time) time.Duration { return time.Since(t) }
