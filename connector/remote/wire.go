package remote

// Paths served by the query server.
const (
	PathQuery    = "/query"
	PathExec     = "/exec"
	PathDescribe = "/describe/{table}"
	PathHealth   = "/healthz"
	PathMetrics  = "/metrics"

	ContentTypeResult = "application/x-tessera-lz4"
)

// StatementRequest carries SQL text for /query and /exec.
type StatementRequest struct {
	SQL string `json:"sql"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
