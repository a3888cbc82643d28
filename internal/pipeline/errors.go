package pipeline

import "fmt"

// PublishError reports a downstream publish that did not confirm within the
// configured timeout. It is terminal for the record; redelivery is the
// broker's job, not this layer's.
type PublishError struct {
	Topic string
	Cause error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q not confirmed: %v", e.Topic, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// Class implements the dead-letter error class contract.
func (e *PublishError) Class() string { return "PublishFailure" }
