package logger

// Standard field keys for structured logging. Use these consistently so
// log lines stay queryable across handlers, the ingest path, and the reaper.
const (
	// Request identification
	KeyRequestID = "request_id"
	KeyRoute     = "route"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyClientIP  = "client_ip"
	KeyStatus    = "status"

	// Upload/download domain identifiers
	KeyKey        = "key"
	KeyContentKey = "content_key"
	KeyConfirmKey = "confirm_key"

	// Size & byte accounting
	KeySize         = "size"
	KeyBytesWritten = "bytes_written"
	KeyTotalBytes   = "total_bytes"
	KeyUploadCount  = "upload_count"

	// Outcome
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorKind  = "error_kind"
	KeyOperation  = "operation"

	// Reaper
	KeyReaped   = "reaped"
	KeyOrphans  = "orphans"
	KeyInterval = "interval"
)
