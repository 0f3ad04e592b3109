package daemon

import (
	"encoding/json"
	stderrors "errors"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing             = "ping"
	MethodStatus           = "status"
	MethodUpload           = "upload"
	MethodSearch           = "search"
	MethodGetDocuments     = "getDocuments"
	MethodDeleteDocuments  = "deleteDocuments"
	MethodDeleteAll        = "deleteAll"
	MethodIngest           = "ingest"
	MethodQueue            = "queue"
	MethodWatchAdd         = "watch.add"
	MethodWatchRemove      = "watch.remove"
	MethodWatchList        = "watch.list"
	MethodWatchClear       = "watch.clear"
	MethodMonitorPause     = "monitor.pause"
	MethodMonitorResume    = "monitor.resume"
	MethodMonitorSummaries = "monitor.summaries"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeApplication marks errors that carry an amandocs error code in Data.
const ErrCodeApplication = -32000

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the structured application error.
type ErrorData struct {
	Code       string            `json:"code"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// Error implements error.
func (e *Error) Error() string {
	return e.Message
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// errorResponse maps err onto the wire, keeping the amandocs code.
func errorResponse(id string, err error) Response {
	var de *amerrors.DocsError
	if !stderrors.As(err, &de) {
		return NewErrorResponse(id, ErrCodeInternalError, err.Error())
	}
	code := ErrCodeApplication
	if de.Code == amerrors.ErrCodeInvalidInput || de.Code == amerrors.ErrCodeQueryEmpty {
		code = ErrCodeInvalidParams
	}
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: de.Message,
			Data: &ErrorData{
				Code:       de.Code,
				Details:    de.Details,
				Suggestion: de.Suggestion,
			},
		},
		ID: id,
	}
}

// asError converts a wire error back into a DocsError when it carries a code.
func (e *Error) asError() error {
	if e.Data == nil || e.Data.Code == "" {
		return e
	}
	de := amerrors.New(e.Data.Code, e.Message, nil)
	for k, v := range e.Data.Details {
		de = de.WithDetail(k, v)
	}
	if e.Data.Suggestion != "" {
		de = de.WithSuggestion(e.Data.Suggestion)
	}
	return de
}

// CollectionParams names a collection. Empty means the default collection.
type CollectionParams struct {
	Collection string `json:"collection,omitempty"`
}

// PathsParams targets paths in a collection.
type PathsParams struct {
	Collection string   `json:"collection,omitempty"`
	Paths      []string `json:"paths"`
}

// DeleteResult reports removed chunks.
type DeleteResult struct {
	Removed int `json:"removed"`
}

// RemovedResult reports whether a watch entry was removed.
type RemovedResult struct {
	Removed bool `json:"removed"`
}

// OKResult acknowledges methods without a payload.
type OKResult struct {
	OK bool `json:"ok"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
