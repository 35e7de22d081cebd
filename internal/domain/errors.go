package domain

import "errors"

// Domain errors.
var (
	// ErrProductIDNotFound is returned when no product ID could be extracted from a link.
	ErrProductIDNotFound = errors.New("product ID not found")

	// ErrMissingCookie is returned when no affiliate auth cookie is available.
	ErrMissingCookie = errors.New("affiliate cookie is required")

	// ErrMissingSigningSecret is returned when the affiliate API app key or secret is not configured.
	ErrMissingSigningSecret = errors.New("affiliate API credentials not configured")

	// ErrMissingBotToken is returned when no Telegram bot token is available for delivery.
	ErrMissingBotToken = errors.New("bot token not available")

	// ErrNoChannels is returned when a delivery resolves to zero target channels.
	ErrNoChannels = errors.New("no channels specified")

	// ErrInvalidImage is returned when an embedded base64 image cannot be decoded.
	ErrInvalidImage = errors.New("invalid embedded image")

	// ErrPostNotFound is returned when a scheduled post cannot be found.
	ErrPostNotFound = errors.New("scheduled post not found")

	// ErrScheduledTimeRequired is returned when a post is submitted without a target time.
	ErrScheduledTimeRequired = errors.New("scheduled time is required")

	// ErrSavedPostNotFound is returned when a saved post cannot be found.
	ErrSavedPostNotFound = errors.New("saved post not found")

	// ErrAssistantUnavailable is returned when no assistant API key is configured.
	ErrAssistantUnavailable = errors.New("assistant not available")

	// ErrQuotaExceeded is returned when the assistant rejects a call for quota reasons.
	ErrQuotaExceeded = errors.New("assistant quota exceeded")
)

// DeliveryError wraps an error with the channel it was delivered to.
type DeliveryError struct {
	Channel string
	Op      string
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Channel != "" {
		return e.Op + " [" + e.Channel + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError creates a new DeliveryError.
func NewDeliveryError(channel, op string, err error) *DeliveryError {
	return &DeliveryError{
		Channel: channel,
		Op:      op,
		Err:     err,
	}
}
