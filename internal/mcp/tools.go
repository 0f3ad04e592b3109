package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the search query to execute"`
	Collection string   `json:"collection,omitempty" jsonschema:"collection to search, default collection when empty"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
	Scope      []string `json:"scope,omitempty" jsonschema:"filter by path prefixes (OR logic)"`
	Sheet      string   `json:"sheet,omitempty" jsonschema:"restrict to chunks from this spreadsheet sheet"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results"`
}

// SearchResultOutput is one matched chunk.
type SearchResultOutput struct {
	FilePath      string   `json:"file_path" jsonschema:"absolute path of the source document"`
	Content       string   `json:"content" jsonschema:"matched chunk text"`
	Score         float64  `json:"score" jsonschema:"similarity score, higher is closer"`
	Sheet         string   `json:"sheet,omitempty" jsonschema:"spreadsheet sheet the chunk came from"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty" jsonschema:"mean OCR confidence for image sources"`
	Keywords      []string `json:"keywords,omitempty" jsonschema:"keywords extracted from the chunk"`
}

// UploadInput defines the input schema for the upload tool.
type UploadInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"target collection, default collection when empty"`
	FilePath   string `json:"file_path,omitempty" jsonschema:"path of a local file to index"`
	FileName   string `json:"file_name,omitempty" jsonschema:"file name to store inline content under"`
	Content    string `json:"content,omitempty" jsonschema:"inline text content, stored under file_name"`
}

// UploadOutput acknowledges a queued upload.
type UploadOutput struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	ItemID            string `json:"item_id,omitempty"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

// DocumentsInput defines the input schema for the list_documents tool.
type DocumentsInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"collection to list, default collection when empty"`
}

// DocumentsOutput lists indexed documents.
type DocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
}

// DocumentOutput is one indexed file.
type DocumentOutput struct {
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	MIMEType    string `json:"mime_type"`
	ChunkCount  int    `json:"chunk_count"`
	LastUpdated string `json:"last_updated" jsonschema:"RFC 3339 time of the last ingestion"`
}

// DeleteInput defines the input schema for the delete_documents tool.
type DeleteInput struct {
	Collection string   `json:"collection,omitempty" jsonschema:"collection to delete from, default collection when empty"`
	Paths      []string `json:"paths,omitempty" jsonschema:"document paths to remove"`
	All        bool     `json:"all,omitempty" jsonschema:"remove every document of the collection"`
}

// DeleteOutput reports a deletion.
type DeleteOutput struct {
	Removed int  `json:"removed" jsonschema:"number of chunks removed"`
	All     bool `json:"all"`
}

// StatusInput defines the input schema for the index_status tool (no parameters).
type StatusInput struct{}

// StatusOutput summarizes the index.
type StatusOutput struct {
	Version        string             `json:"version"`
	Embedder       string             `json:"embedder"`
	Dimensions     int                `json:"dimensions"`
	Collections    []CollectionOutput `json:"collections"`
	QueuePending   int                `json:"queue_pending"`
	QueueRemaining int                `json:"queue_remaining"`
	MonitorState   string             `json:"monitor_state"`
	MonitorPaused  bool               `json:"monitor_paused"`
}

// CollectionOutput summarizes one collection.
type CollectionOutput struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Size      string `json:"size"`
}

// WatchInput defines the input schema for the watch tool.
type WatchInput struct {
	Action     string `json:"action" jsonschema:"one of add, remove, list"`
	Collection string `json:"collection,omitempty" jsonschema:"collection the watched files are indexed into"`
	Path       string `json:"path,omitempty" jsonschema:"file or directory to watch, required for add and remove"`
	Name       string `json:"name,omitempty" jsonschema:"display name for the entry"`
}

// WatchOutput reports watch-list state.
type WatchOutput struct {
	Entries []WatchEntryOutput `json:"entries,omitempty"`
	Removed bool               `json:"removed,omitempty"`
}

// WatchEntryOutput is one watched path.
type WatchEntryOutput struct {
	Collection   string `json:"collection"`
	Port         int    `json:"port"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	RegisteredAt string `json:"registered_at,omitempty"`
}
