// Package models holds the request and response shapes of the HTTP API.
package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.25.0" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Log models
type LogEntry struct {
	Timestamp  string            `json:"timestamp" example:"2026-01-27T10:30:00.123Z" doc:"Record time"`
	Level      string            `json:"level" example:"info" doc:"Log level"`
	Module     string            `json:"module" example:"capture" doc:"Module that logged the record"`
	Message    string            `json:"message" example:"Capture started" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsRequest struct {
	Limit int `query:"limit" minimum:"0" maximum:"500" default:"100" doc:"Number of most recent records, 0 for all"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Recent log records, oldest first"`
	Count   int        `json:"count" example:"100" doc:"Number of records returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" example:"capture" doc:"Module name"`
		Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}
