package service

import "time"

// Endpoint names one backend operation. Name labels logs and metrics, Path is
// appended to the backend base URL.
type Endpoint struct {
	Name string
	Path string
}

var (
	EndpointChatWithData   = Endpoint{Name: "chat-with-data", Path: "/chat-with-data"}
	EndpointChat           = Endpoint{Name: "chat", Path: "/chat-with-data"}
	EndpointCleanData      = Endpoint{Name: "clean-data", Path: "/clean-data"}
	EndpointReport         = Endpoint{Name: "generate-report", Path: "/generate-report"}
	EndpointVisualizations = Endpoint{Name: "generate-visualizations", Path: "/generate-visualizations"}
)

const (
	// DefaultReportInstructions is sent when the report form has no instructions.
	DefaultReportInstructions = "Generate a detailed business report highlighting key insights."

	// DefaultTimeout bounds a single backend call. Report generation is slow.
	DefaultTimeout = 5 * time.Minute

	// maxErrorText caps raw backend text surfaced to clients.
	maxErrorText = 1024
)
