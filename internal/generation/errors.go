package generation

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindUnsupportedModel Kind = "unsupported_model"
	KindUpstream         Kind = "upstream_error"
	KindMissingAssetURL  Kind = "missing_asset_url"
	KindInvalidAssetType Kind = "invalid_asset_type"
	KindInvalidRequest   Kind = "invalid_request"
)

// Error is returned by Dispatcher.Generate. Match it by kind with errors.Is
// against the Err* sentinels, or unpack it with errors.As.
type Error struct {
	Kind       Kind
	ProviderID string
	Message    string
	// Status is the upstream HTTP status when one was received.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("generation %s", e.Kind)
	if e.ProviderID != "" {
		msg += " (" + e.ProviderID + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.ProviderID == "" && t.Message == ""
}

var (
	ErrUnsupportedModel = &Error{Kind: KindUnsupportedModel}
	ErrUpstream         = &Error{Kind: KindUpstream}
	ErrMissingAssetURL  = &Error{Kind: KindMissingAssetURL}
	ErrInvalidAssetType = &Error{Kind: KindInvalidAssetType}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
)

// KindOf returns the kind of a generation error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func failure(kind Kind, providerID, format string, args ...any) *Error {
	return &Error{Kind: kind, ProviderID: providerID, Message: fmt.Sprintf(format, args...)}
}
