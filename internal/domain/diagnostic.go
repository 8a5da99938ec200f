package domain

// DiagnosticKind classifies a row-level problem. Values are stable strings so
// callers can switch on them or render their own messages.
type DiagnosticKind string

const (
	// Tokenizer.
	KindColumnCountMismatch DiagnosticKind = "ColumnCountMismatch"
	KindMalformedRow        DiagnosticKind = "MalformedRow"

	// Mapper.
	KindMissingRequiredColumn DiagnosticKind = "MissingRequiredColumn"
	KindMissingRequiredValue  DiagnosticKind = "MissingRequiredValue"
	KindTypeCoercionFailed    DiagnosticKind = "TypeCoercionFailed"
	KindCostMismatch          DiagnosticKind = "CostMismatch"

	// Validator.
	KindNegativeOdometer      DiagnosticKind = "NegativeOdometer"
	KindImplausibleVolume     DiagnosticKind = "ImplausibleVolume"
	KindFutureDate            DiagnosticKind = "FutureDate"
	KindBeforeRegistration    DiagnosticKind = "BeforeRegistration"
	KindUnknownReference      DiagnosticKind = "UnknownReference"
	KindReferenceLookupFailed DiagnosticKind = "ReferenceLookupFailed"
	KindDuplicateInBatch      DiagnosticKind = "DuplicateInBatch"

	// Loader.
	KindDuplicateExisting DiagnosticKind = "DuplicateExisting"
	KindStoreError        DiagnosticKind = "StoreError"
)

// Diagnostic is a single field-level error or warning. Kind is the stable
// part; Detail is unlocalized context for logs (a parse error, the store's
// message) and callers should not match on it.
type Diagnostic struct {
	Field    Field          `json:"field,omitempty"`
	Kind     DiagnosticKind `json:"kind"`
	RawValue string         `json:"rawValue,omitempty"`
	Detail   string         `json:"detail,omitempty"`
}

// RowDiagnostics groups diagnostics for one source row.
type RowDiagnostics struct {
	RowIndex int          `json:"rowIndex"`
	Line     int          `json:"line,omitempty"`
	Reasons  []Diagnostic `json:"reasons"`
}
