package constants

import "time"

// HTTP constants
const (
	// SessionHeader carries the client's session id
	SessionHeader = "X-Session-ID"

	// UploadField is the multipart field holding the uploaded table
	UploadField = "file"
)

// Session constants
const (
	// JanitorInterval is how often idle sessions are swept
	JanitorInterval = 15 * time.Minute

	// MaxCleanupAgeHours bounds max_age_hours on manual cleanup (ten years)
	MaxCleanupAgeHours = 10 * 365 * 24
)

// AI constants
const (
	// AIRequestTimeout bounds a single assistant call, retries included
	AIRequestTimeout = 60 * time.Second

	// SuggestionsQuestion is recorded in the conversation when suggestions are requested
	SuggestionsQuestion = "What should I do next?"

	// AnalysisQuestion is recorded in the conversation when an analysis is requested
	AnalysisQuestion = "Generate analysis summary"
)

// Shutdown constants
const (
	// ShutdownTimeout bounds graceful HTTP shutdown
	ShutdownTimeout = 5 * time.Second
)
