package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"

	FieldDate    = "date"
	FieldSteps   = "steps"
	FieldDelta   = "delta"
	FieldGoal    = "goal"
	FieldWindow  = "window_days"
	FieldEntries = "entries"
)

// Standard component names.
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentSensor  = "sensor"
	ComponentAMQP    = "amqp"
	ComponentHTTP    = "http"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
)
