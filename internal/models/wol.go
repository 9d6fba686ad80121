package models

import "time"

// WOLConfig holds Wake-on-LAN configuration for the storage host.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	PollURL       string        // polled until the storage host answers; defaults to the store endpoint
	Timeout       time.Duration // max time to wait for the host
	PollInterval  time.Duration
	StabilizeWait time.Duration // wait after the host responds
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	Attempts     int
	WaitDuration time.Duration
}
