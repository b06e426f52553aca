package records_client

const (
	// DefaultBaseURL points at the federation records service on the meet network.
	DefaultBaseURL = "http://localhost:8090"

	checkRecordPath = "/api/records/check"

	APIKeyHeader    = "X-API-Key"
	JsonHeader      = "Content-Type"
	JsonContentType = "application/json"
	AcceptHeader    = "Accept"
)
