// Package logging configures structured JSON logging for amandocs.
//
// Logs are written to ~/.amandocs/logs/server.log with size-based rotation.
// The MCP stdio surface must never write to stdout or stderr, so it uses
// SetupStdioSafe which logs to the file only.
package logging
