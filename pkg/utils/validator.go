package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidInstrument = errors.New("invalid instrument")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrInvalidSignalKind = errors.New("invalid signal kind")
	ErrInvalidPrice      = errors.New("invalid price")
)

// instrumentRe matches the uppercase, underscore-separated instrument
// codes TradingView alert payloads send, e.g. BANK_NIFTY, GOLDM.
var instrumentRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,19}$`)

// ValidateInstrumentShape checks that an instrument code has the
// expected uppercase-alnum-underscore shape, independent of whether it
// is one this build actually trades.
func ValidateInstrumentShape(instrument string) error {
	if !instrumentRe.MatchString(instrument) {
		return fmt.Errorf("%w: %q", ErrInvalidInstrument, instrument)
	}
	return nil
}

// ValidateKnownInstrument checks instrument is shape-valid and, when
// known is non-empty, a member of it (the instrument set this process
// is actually configured to trade). An empty known list only enforces
// shape, for callers that have not wired up a configured instrument
// set.
func ValidateKnownInstrument(instrument string, known []string) error {
	if err := ValidateInstrumentShape(instrument); err != nil {
		return err
	}
	if len(known) == 0 {
		return nil
	}
	for _, k := range known {
		if k == instrument {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownInstrument, instrument)
}

// ValidateSignalKind checks kind is a member of known, the set of
// business signal kinds this build understands.
func ValidateSignalKind(kind string, known []string) error {
	for _, k := range known {
		if k == kind {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidSignalKind, kind)
}

// ValidatePrice checks price is strictly positive.
func ValidatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	return nil
}

// SignalStructure bundles the inbound webhook fields that need
// structural validation before a signal is handed to condition
// validation and the engine.
type SignalStructure struct {
	Instrument string
	Kind       string
	Price      float64
}

// ValidateSignalStructure runs per-field structural validation,
// aggregating every failure instead of stopping at the first so the
// caller can report all of them in one response.
func ValidateSignalStructure(s SignalStructure, knownInstruments, knownKinds []string) error {
	var errs ValidationErrors
	errs.AddError("instrument", ValidateKnownInstrument(s.Instrument, knownInstruments))
	errs.AddError("type", ValidateSignalKind(s.Kind, knownKinds))
	errs.AddError("price", ValidatePrice(s.Price))

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidationError is one field-level failure.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors aggregates field-level failures into a single error.
type ValidationErrors []ValidationError

// Add appends a field/message pair.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// AddError appends err's message under field, ignoring a nil err.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	*e = append(*e, ValidationError{Field: field, Message: err.Error()})
}

// HasErrors reports whether any field failed validation.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, err := range e {
		parts[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return strings.Join(parts, "; ")
}
