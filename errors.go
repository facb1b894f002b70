package emailguard

import "errors"

var (
	// ErrInvalidSMTPOptions is returned when WithSMTP is called
	// but HeloDomain or MailFrom is missing.
	ErrInvalidSMTPOptions = errors.New("emailguard: SMTPOptions requires HeloDomain and MailFrom")

	// ErrInvalidWeights is returned when every score weight is zero or one is negative.
	ErrInvalidWeights = errors.New("emailguard: weights must be non-negative with a positive sum")

	// ErrNilResolver is returned when WithResolver is called with nil.
	ErrNilResolver = errors.New("emailguard: resolver is nil")
)
