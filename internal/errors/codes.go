package errors

// ErrorCode represents a unique error code for specific error scenarios.
type ErrorCode string

const (
	// Session errors
	CodeSessionNotReady ErrorCode = "SESSION_NOT_READY"
	CodeProjectLoad     ErrorCode = "PROJECT_LOAD_FAILED"

	// Graph errors
	CodeNodeNotFound      ErrorCode = "NODE_NOT_FOUND"
	CodeEdgeNotFound      ErrorCode = "EDGE_NOT_FOUND"
	CodeMissingID         ErrorCode = "MISSING_ID"
	CodeDanglingReference ErrorCode = "DANGLING_REFERENCE"
	CodeSelfConnection    ErrorCode = "NODE_SELF_CONNECTION"
	CodeDuplicateEdge     ErrorCode = "EDGE_ALREADY_EXISTS"
	CodeUnknownVariant    ErrorCode = "UNKNOWN_VARIANT"
	CodeProjectMismatch   ErrorCode = "PROJECT_MISMATCH"

	// Persistence errors
	CodePersistence     ErrorCode = "PERSISTENCE_FAILED"
	CodeMalformedRecord ErrorCode = "MALFORMED_RECORD"
	CodeRPCUnavailable  ErrorCode = "RPC_UNAVAILABLE"
	CodeRecordNotFound  ErrorCode = "RECORD_NOT_FOUND"
	CodeCircuitOpen     ErrorCode = "CIRCUIT_OPEN"

	// Template errors
	CodeTemplateIntegrity ErrorCode = "TEMPLATE_INTEGRITY"

	// Input validation
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodeForbidden        ErrorCode = "FORBIDDEN"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrSessionNotReady = NewError(ErrorTypeState, CodeSessionNotReady, "session is not ready").Build()
	ErrNodeNotFound    = NotFound(CodeNodeNotFound, "node not found").Build()
	ErrEdgeNotFound    = NotFound(CodeEdgeNotFound, "edge not found").Build()
	ErrMissingID       = Validation(CodeMissingID, "identifier is required").Build()
	ErrUnknownVariant  = Validation(CodeUnknownVariant, "unknown node variant").Build()
	ErrProjectMismatch = Validation(CodeProjectMismatch, "entity belongs to another project").Build()
	ErrMalformedRecord = Internal(CodeMalformedRecord, "malformed remote record").Build()
	ErrRPCUnavailable  = NewError(ErrorTypeUnavailable, CodeRPCUnavailable, "remote procedure unavailable").Build()
	ErrRecordNotFound  = NotFound(CodeRecordNotFound, "record not found").Build()
	ErrCircuitOpen     = NewError(ErrorTypeUnavailable, CodeCircuitOpen, "persistence circuit open").WithRetryable(true).Build()
	ErrUnauthenticated = NewError(ErrorTypeValidation, CodeUnauthenticated, "no authenticated user").Build()
	ErrForbidden       = NewError(ErrorTypeForbidden, CodeForbidden, "not allowed to modify this project").Build()
)
