package processor

import (
	"context"
	"errors"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Processor handles one consumed record. A nil return means the record's
// side effects are fully applied and it may be acknowledged; a non-nil
// return is terminal for the record and sends it to the dead-letter route.
type Processor interface {
	Process(ctx context.Context, msg *cKafka.Message) error
}

// Classified is implemented by processing errors that carry a stable class
// name, used for the dead-letter x-error-class header.
type Classified interface {
	error
	Class() string
}

// UnknownErrorClass is reported for errors that do not implement Classified.
const UnknownErrorClass = "UnknownError"

// ClassOf extracts the error class from err's chain.
func ClassOf(err error) string {
	var c Classified
	if errors.As(err, &c) {
		return c.Class()
	}
	return UnknownErrorClass
}
