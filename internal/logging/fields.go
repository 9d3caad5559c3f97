package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldErrorKind = "error_kind"
	FieldStage     = "stage"
	FieldItemID    = "item_id"
	FieldRequestID = "request_id"
	FieldSource    = "source_file"
)
