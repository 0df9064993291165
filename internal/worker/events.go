package worker

// TopicIngestTask is the NSQ topic for document ingestion tasks. A single
// consumer channel keeps index writes serialized.
const TopicIngestTask = "ingest.task"

// ChannelIngest is the consumer channel name for the ingest worker.
const ChannelIngest = "indexer"

// IngestTaskPayload is one uploaded document to extract, summarize and index.
type IngestTaskPayload struct {
	DocID         string `json:"doc_id"`
	Name          string `json:"name"`
	Path          string `json:"path"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
