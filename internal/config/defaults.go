package config

// DefaultServerURL is the default chat server origin, matching the local
// development server's listen address.
const DefaultServerURL = "ws://127.0.0.1:8990"

// DefaultHideDelayMs is the default loading overlay hide delay.
const DefaultHideDelayMs = 250

// DefaultLogLevel is the default logging verbosity.
const DefaultLogLevel = "info"
