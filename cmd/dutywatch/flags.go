package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Root       string
}

type SuperviseFlags struct {
	Daemonize bool
	LogFile   string
}

type CollectFlags struct {
	Once bool
}

type EventFlags struct {
	Action string
	Reason string
	// Remote supervisor connection; empty writes the mailbox file directly.
	APIUrl     string
	APITimeout time.Duration
}

type ReasonFlags struct {
	Consume bool
}

type SelftestFlags struct {
	Wait time.Duration
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Queue      bool
}
