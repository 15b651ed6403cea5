package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Node / RPC errors
	CodeNodeConnectionFailed: "Failed to connect to blockchain node",
	CodeNodeRPCError:         "Node RPC call failed",
	CodeContractCallFailed:   "Smart contract call failed",
	CodeRetryCeilingExceeded: "Retry ceiling exceeded for rate-limited call",

	// Quoter errors
	CodeQuoteFailed:           "Failed to obtain quote from pool",
	CodePoolNotFound:          "Pool contract not found",
	CodeZeroLiquidity:         "Pool has zero active liquidity",
	CodeTickAlignmentFailed:   "Tick alignment failed",
	CodeRevertDecodeMismatch:  "Revert payload did not match expected error signature",
	CodeIndexResolutionFailed: "Failed to resolve token indices in pool",
	CodeUnsupportedProtocol:   "Unsupported pool protocol",
	CodeInvalidQuote:          "Invalid quote data",

	// Collaborator errors
	CodeRegistryUnavailable:   "Pool registry unavailable",
	CodePriceTableUnavailable: "Reference price table unavailable",
	CodeAggregatorAPIError:    "Aggregator API error",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
