package tracelogger

// Direction tells whether a captured request was received or issued by the
// instrumented service.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Record is the structured event describing one captured request/response
// pair. Optional fields are omitted from the wire form when absent;
// StatusCode in particular stays absent unless a response was recorded.
type Record struct {
	TraceID     string    `json:"trace_id"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Timestamp   string    `json:"timestamp"`
	Direction   Direction `json:"direction"`
	Route       string    `json:"route"`
	Method      string    `json:"method"`
	StatusCode  *int      `json:"status_code,omitempty"`
	DurationMS  float64   `json:"duration_ms"`

	CallerService string `json:"caller_service,omitempty"`
	CallerUserID  string `json:"caller_user_id,omitempty"`
	CallerIP      string `json:"caller_ip,omitempty"`

	RequestPayload  any            `json:"request_payload,omitempty"`
	ResponsePayload any            `json:"response_payload,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`

	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorStack   string `json:"error_stack,omitempty"`

	HostName string `json:"host_name,omitempty"`
}

// Envelope is the ingestion payload accepted by the internal observability
// API. Each capture session produces an envelope with exactly one record.
type Envelope struct {
	Records          []Record `json:"records"`
	IngestionVersion int      `json:"ingestion_version"`
}

const ingestionVersion = 1
