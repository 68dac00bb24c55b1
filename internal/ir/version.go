package ir

// Version constants for the engine and trace schema.
const (
	// TraceVersion is the version of the recorded trace layout.
	TraceVersion = "1"

	// EngineVersion is the ifthen engine version.
	EngineVersion = "0.1.0"
)
