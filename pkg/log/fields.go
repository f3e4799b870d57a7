package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Dashboard
	FieldClientID = "client_id"
	FieldCommand  = "command"

	// Integrations
	FieldIntegration = "integration"
	FieldAttempt     = "attempt"
	FieldState       = "state"
	FieldChannel     = "channel"
	FieldInstance    = "instance"
	FieldScene       = "scene"
	FieldSource      = "source"

	// Service
	FieldService = "service"

	// Event bus
	FieldSubscriber = "subscriber"
	FieldDropped    = "dropped"
)
