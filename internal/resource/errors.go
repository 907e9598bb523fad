package resource

import (
	"errors"

	"github.com/aws/smithy-go"
)

// notFoundCodes are API error codes meaning the resource does not exist.
var notFoundCodes = map[string]bool{
	"InvalidInstanceID.NotFound": true,
	"ServiceNotFoundException":   true,
	"ClusterNotFoundException":   true,
	"DBInstanceNotFound":         true,
	"DBInstanceNotFoundFault":    true,
	"DBClusterNotFoundFault":     true,
	"ResourceNotFoundException":  true,
}

// isNotFound reports whether err is an API error for a missing resource.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return notFoundCodes[apiErr.ErrorCode()]
	}
	return false
}
