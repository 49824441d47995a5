// Package event defines the payload types carried by the gateway's side-work pipelines.
//
// # Core Types
//
// CloudEvent represents a CloudEvents 1.0 event with required and optional fields:
//
//	event := &event.CloudEvent{
//	    ID:          "unique-event-id",
//	    Source:      "/gateway/plugins/sign",
//	    SpecVersion: "1.0",
//	    Type:        "gateway.request.audited",
//	    Time:        &now,
//	    Data:        []byte(`{"key": "value"}`),
//	}
//
// # Record Structure
//
// Record combines a CloudEvent with the gateway request that produced it:
//
//	record := event.Record{
//	    Event: cloudEvent,
//	    Gateway: event.GatewayMetadata{
//	        Plugin:    "sign",
//	        Route:     "/orders/{id}",
//	        Method:    "GET",
//	        Status:    200,
//	        Timestamp: time.Now(),
//	    },
//	}
//
// # Stream Identification
//
// StreamID identifies the archive stream a record is buffered in:
//
//	sid := event.StreamID{Plugin: "sign", Shard: 3}
//	key := sid.String() // "sign-3"
//
// # SDK Mapping
//
// FromSDK and ToSDK copy fields between CloudEvent and the CloudEvents SDK event type.
// They are pure mappings and hold no state.
//
// # Time Utilities
//
// Records provide convenient methods for extracting event timestamps:
//
//	eventTime := record.GetEventTime()      // Returns time.Time
//	unixTime := record.GetEventTimeUnix()   // Returns Unix timestamp
//
// The methods fall back to the gateway request timestamp if CloudEvent.Time is not set.
package event
