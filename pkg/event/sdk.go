package event

import (
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// FromSDK copies an SDK event into a CloudEvent.
func FromSDK(e cloudevents.Event) *CloudEvent {
	ce := &CloudEvent{
		ID:          e.ID(),
		Source:      e.Source(),
		SpecVersion: e.SpecVersion(),
		Type:        e.Type(),
	}

	if v := e.DataContentType(); v != "" {
		ce.DataContentType = &v
	}
	if v := e.DataSchema(); v != "" {
		ce.DataSchema = &v
	}
	if v := e.Subject(); v != "" {
		ce.Subject = &v
	}
	if t := e.Time(); !t.IsZero() {
		ce.Time = &t
	}
	if data := e.Data(); len(data) > 0 {
		ce.Data = append([]byte(nil), data...)
	}
	if ext := e.Extensions(); len(ext) > 0 {
		ce.Extensions = make(map[string]interface{}, len(ext))
		for k, v := range ext {
			ce.Extensions[k] = v
		}
	}

	return ce
}

// ToSDK copies a CloudEvent into an SDK event and validates it.
func ToSDK(ce *CloudEvent) (cloudevents.Event, error) {
	if ce == nil {
		return cloudevents.Event{}, fmt.Errorf("event is nil")
	}

	e := cloudevents.NewEvent()
	if ce.SpecVersion != "" {
		e.SetSpecVersion(ce.SpecVersion)
	}
	e.SetID(ce.ID)
	e.SetSource(ce.Source)
	e.SetType(ce.Type)

	if ce.Subject != nil {
		e.SetSubject(*ce.Subject)
	}
	if ce.DataSchema != nil {
		e.SetDataSchema(*ce.DataSchema)
	}
	if ce.Time != nil {
		e.SetTime(*ce.Time)
	}

	contentType := cloudevents.ApplicationJSON
	if ce.DataContentType != nil {
		contentType = *ce.DataContentType
	}
	if len(ce.Data) > 0 {
		if err := e.SetData(contentType, []byte(ce.Data)); err != nil {
			return cloudevents.Event{}, fmt.Errorf("failed to set event data: %w", err)
		}
	} else if ce.DataContentType != nil {
		e.SetDataContentType(contentType)
	}

	for k, v := range ce.Extensions {
		if err := e.Context.SetExtension(k, v); err != nil {
			return cloudevents.Event{}, fmt.Errorf("failed to set extension %s: %w", k, err)
		}
	}

	if err := e.Validate(); err != nil {
		return cloudevents.Event{}, fmt.Errorf("invalid cloud event: %w", err)
	}
	return e, nil
}
