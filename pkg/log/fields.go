package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Domain
	FieldAccountID = "account_id"
	FieldOpenID    = "openid"
	FieldTagID     = "tag_id"
	FieldJob       = "job"
	FieldBatch     = "batch"

	// Service
	FieldService = "service"
)
