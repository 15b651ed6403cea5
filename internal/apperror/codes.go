package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Quote engine error codes
const (
	// Node / RPC errors
	CodeNodeConnectionFailed Code = "NODE_CONNECTION_FAILED"
	CodeNodeRPCError         Code = "NODE_RPC_ERROR"
	CodeContractCallFailed   Code = "CONTRACT_CALL_FAILED"
	CodeRetryCeilingExceeded Code = "RETRY_CEILING_EXCEEDED"

	// Quoter errors (pool-level, never fatal to a simulation)
	CodeQuoteFailed           Code = "QUOTE_FAILED"
	CodePoolNotFound          Code = "POOL_NOT_FOUND"
	CodeZeroLiquidity         Code = "ZERO_LIQUIDITY"
	CodeTickAlignmentFailed   Code = "TICK_ALIGNMENT_FAILED"
	CodeRevertDecodeMismatch  Code = "REVERT_DECODE_MISMATCH"
	CodeIndexResolutionFailed Code = "INDEX_RESOLUTION_FAILED"
	CodeUnsupportedProtocol   Code = "UNSUPPORTED_PROTOCOL"
	CodeInvalidQuote          Code = "INVALID_QUOTE"

	// Collaborator errors (batch-level)
	CodeRegistryUnavailable   Code = "REGISTRY_UNAVAILABLE"
	CodePriceTableUnavailable Code = "PRICE_TABLE_UNAVAILABLE"
	CodeAggregatorAPIError    Code = "AGGREGATOR_API_ERROR"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
