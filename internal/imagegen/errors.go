package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Sentinel errors for the two transport-level failure modes. Anything
// with a status code becomes a ServiceError instead.
var (
	ErrUnreachable = errors.New("imagegen: service unreachable")
	ErrTimeout     = errors.New("imagegen: service timeout")
)

// ServiceError is a non-200 response from the image service.
type ServiceError struct {
	Status int
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("imagegen: service returned status %d", e.Status)
}

// classify maps a transport error to ErrTimeout or ErrUnreachable,
// keeping the cause in the chain.
func classify(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}
