package wire

// Endpoint paths relative to the service base URL.
const (
	PathIngestBin  = "/ingest.bin"
	PathIngestPack = "/ingest.pack"
	PathSearch     = "/search"
	PathStats      = "/stats"
)

// ContentType is used for every binary request body.
const ContentType = "application/octet-stream"

// IngestedHeader carries the number of records the server accepted.
const IngestedHeader = "X-Ingested"
