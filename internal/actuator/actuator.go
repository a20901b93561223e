// Package actuator defines the actuation channel fed by the engagement level
// and the driver that forwards level changes to it.
package actuator

import (
	"context"
	"time"
)

// Device describes one connected device.
type Device struct {
	Index     int
	Name      string
	Battery   *float64 // fraction in [0,1] when the device reports it
	Vibrators int
	Linear    int
	Rotators  int
}

// Channel is an actuation output.
type Channel interface {
	// Activate drives every device at intensity in [0,1]. A positive duration
	// stops the devices again after it elapses.
	Activate(ctx context.Context, intensity float64, duration time.Duration) error
	// Stop halts every device.
	Stop(ctx context.Context) error
	// Devices returns the connected devices.
	Devices() []Device
}

// Nop is a Channel without devices.
type Nop struct{}

// Activate implements Channel.
func (Nop) Activate(context.Context, float64, time.Duration) error { return nil }

// Stop implements Channel.
func (Nop) Stop(context.Context) error { return nil }

// Devices implements Channel.
func (Nop) Devices() []Device { return nil }
