package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const safeDetailsPrefix = "__json__:"

// GetReportableDetails collects every map attached with WithReportableDetails
func GetReportableDetails(err error) map[string]any {
	details := make(map[string]any)

	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			if !strings.HasPrefix(payload, safeDetailsPrefix) {
				continue
			}
			var jsonDetails map[string]any
			if err := json.Unmarshal([]byte(payload[len(safeDetailsPrefix):]), &jsonDetails); err == nil {
				for k, v := range jsonDetails {
					// outer wrappers win over inner ones
					if _, exists := details[k]; !exists {
						details[k] = v
					}
				}
			}
		}
	}

	return details
}

// NewErrorResponse renders err into the API error envelope
func NewErrorResponse(err error) ErrorResponse {
	display := strings.TrimSpace(GetHint(err))
	if display == "" {
		display = "An unexpected error occurred"
	}
	return ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Display: display,
			Details: GetReportableDetails(err),
		},
	}
}
