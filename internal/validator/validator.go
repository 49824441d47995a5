// Package validator checks audit records before they are archived or sent.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ event.Validator = (*CloudEventsValidator)(nil)

// CloudEventsValidator validates CloudEvents 1.0 envelopes.
type CloudEventsValidator struct{}

// NewCloudEventsValidator creates a new CloudEvents validator.
func NewCloudEventsValidator() *CloudEventsValidator {
	return &CloudEventsValidator{}
}

func missing(e *event.CloudEvent, field string) error {
	return &errors.ValidationError{
		EventID: e.ID,
		Field:   field,
		Reason:  "required field is missing",
	}
}

// Validate checks the required attributes, the spec version and, for JSON
// content types, that data is well formed. A legacy "0.1" spec version is
// rewritten to "1.0".
func (v *CloudEventsValidator) Validate(e *event.CloudEvent) error {
	if e == nil {
		return &errors.ValidationError{Field: "event", Reason: "event is nil"}
	}

	switch {
	case e.ID == "":
		return missing(e, "id")
	case e.Source == "":
		return missing(e, "source")
	case e.SpecVersion == "":
		return missing(e, "specversion")
	case e.Type == "":
		return missing(e, "type")
	}

	if e.SpecVersion == "0.1" {
		e.SpecVersion = "1.0"
	}
	if e.SpecVersion != "1.0" {
		return &errors.ValidationError{
			EventID: e.ID,
			Field:   "specversion",
			Reason:  fmt.Sprintf("unsupported version: %s (supported: 1.0)", e.SpecVersion),
		}
	}

	if len(e.Data) > 0 && isJSON(e.DataContentType) && !json.Valid(e.Data) {
		return &errors.ValidationError{
			EventID: e.ID,
			Field:   "data",
			Reason:  "data is not valid JSON",
		}
	}

	return nil
}

// isJSON reports whether a content type carries JSON. An absent content type
// defaults to application/json.
func isJSON(contentType *string) bool {
	if contentType == nil || *contentType == "" {
		return true
	}
	ct := strings.ToLower(*contentType)
	return strings.HasPrefix(ct, "application/json") || strings.HasSuffix(strings.SplitN(ct, ";", 2)[0], "+json")
}

// RecordValidator validates a complete audit record.
type RecordValidator struct {
	events *CloudEventsValidator
}

// NewRecordValidator creates a new record validator.
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{events: NewCloudEventsValidator()}
}

// Validate checks the CloudEvent and the gateway fields used for routing.
func (v *RecordValidator) Validate(r *event.Record) error {
	if r == nil {
		return &errors.ValidationError{Field: "record", Reason: "record is nil"}
	}
	if err := v.events.Validate(r.Event); err != nil {
		return err
	}
	if r.Gateway.Plugin == "" {
		return &errors.ValidationError{
			EventID: r.Event.ID,
			Field:   "plugin",
			Reason:  "required field is missing",
		}
	}
	return nil
}
