package revocation

import (
	"fmt"
	"time"
)

// State is the outcome of a revocation check.
type State int

const (
	NotChecked State = iota
	Valid
	Revoked
	Unknown
)

// Source names where a Valid or Revoked decision came from.
type Source int

const (
	SourceNone Source = iota
	SourceEmbeddedOCSP
	SourceEmbeddedCRL
	SourceLiveOCSP
)

// Reason explains an Unknown or NotChecked state.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonTimeout
	ReasonNetwork
	ReasonProtocol
	ReasonNoResponder
	ReasonNoIssuer
	ReasonResponderUnknown
	ReasonDisabled
)

func (r Reason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonNetwork:
		return "network error"
	case ReasonProtocol:
		return "check failed"
	case ReasonNoResponder:
		return "no responder"
	case ReasonNoIssuer:
		return "no issuer"
	case ReasonResponderUnknown:
		return "certificate unknown to responder"
	case ReasonDisabled:
		return "disabled"
	}
	return "none"
}

// Status is the tri-state revocation result plus its provenance.
type Status struct {
	State     State
	Source    Source
	Reason    Reason
	RevokedAt *time.Time
	// Err is the underlying failure for Unknown states. It is not
	// serialized.
	Err error
}

var labels = map[Status]string{
	{State: NotChecked}:                              "Not Checked",
	{State: NotChecked, Reason: ReasonDisabled}:      "Not Checked",
	{State: Valid, Source: SourceEmbeddedOCSP}:       "Valid (Embedded)",
	{State: Valid, Source: SourceEmbeddedCRL}:        "Valid (CRL)",
	{State: Valid, Source: SourceLiveOCSP}:           "Valid (Live OCSP)",
	{State: Unknown, Reason: ReasonTimeout}:          "Unknown (Timeout)",
	{State: Unknown, Reason: ReasonNetwork}:          "Unknown (Network Error)",
	{State: Unknown, Reason: ReasonProtocol}:         "Unknown (Check Failed)",
	{State: Unknown, Reason: ReasonNoResponder}:      "Unknown (No Responder)",
	{State: Unknown, Reason: ReasonNoIssuer}:         "Unknown (No Issuer)",
	{State: Unknown, Reason: ReasonResponderUnknown}: "Unknown (Certificate Unknown)",
}

func (s Status) key() Status {
	return Status{State: s.State, Source: s.Source, Reason: s.Reason}
}

// String returns the user facing label.
func (s Status) String() string {
	if s.State == Revoked {
		return "Revoked"
	}
	if l, ok := labels[s.key()]; ok {
		return l
	}
	if s.State == Unknown {
		return "Unknown (Check Failed)"
	}
	return "Not Checked"
}

// IsDecided reports whether the certificate status is known.
func (s Status) IsDecided() bool {
	return s.State == Valid || s.State == Revoked
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus maps a label produced by Status.String back to a Status.
func ParseStatus(label string) (Status, error) {
	if label == "Revoked" {
		return Status{State: Revoked}, nil
	}
	if label == "Not Checked" {
		return Status{State: NotChecked}, nil
	}
	for st, l := range labels {
		if l == label {
			return st, nil
		}
	}
	return Status{}, fmt.Errorf("unknown revocation status %q", label)
}
