package upload

import (
	"math/rand"

	"github.com/studyhub/backend/internal/models"
)

// ProcessingFailureMessage is shown on items whose processing failed.
const ProcessingFailureMessage = "Failed to process file. Please try again."

// DefaultSuccessRate is the probability that processing succeeds.
const DefaultSuccessRate = 0.8

// ProcessingFailure is the simulated processing error. It never escapes the
// manager; it only becomes the item's error message.
type ProcessingFailure struct {
	Message string
}

func (e *ProcessingFailure) Error() string {
	return e.Message
}

// ErrProcessingFailed is returned by the default resolver on failure.
var ErrProcessingFailed error = &ProcessingFailure{Message: ProcessingFailureMessage}

// Resolver decides the outcome of processing. A nil error means the item
// completes; any other error fails it with the error's text as message.
type Resolver func(item models.UploadItem) error

// RandomResolver succeeds with the given probability.
func RandomResolver(successRate float64) Resolver {
	return func(models.UploadItem) error {
		if rand.Float64() < successRate {
			return nil
		}
		return ErrProcessingFailed
	}
}

// AlwaysSucceed is a Resolver that never fails.
func AlwaysSucceed(models.UploadItem) error { return nil }

// AlwaysFail is a Resolver that always fails with ErrProcessingFailed.
func AlwaysFail(models.UploadItem) error { return ErrProcessingFailed }

func failureMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ProcessingFailureMessage
}
