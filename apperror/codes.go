package apperror

// Code is a unique error code for the application.
type Code string

const (
	// CodeAdapterFailure marks one quote source as unavailable. Non-fatal:
	// the orchestrator logs it and omits the quote.
	CodeAdapterFailure Code = "ADAPTER_FAILURE"

	// CodePreparationFailure marks a quote that cannot be turned into an
	// on-chain call. Fatal to that quote only.
	CodePreparationFailure Code = "PREPARATION_FAILURE"

	// CodeSimulationRejected marks a bundle that would revert. Fatal to the
	// arbitrage path, triggers fallback.
	CodeSimulationRejected Code = "SIMULATION_REJECTED"

	// CodeRelayNotIncluded marks a bundle not mined in its target block.
	// Fatal to the arbitrage attempt, no automatic retarget.
	CodeRelayNotIncluded Code = "RELAY_NOT_INCLUDED"

	// CodeNoRouteFound marks a request for which no venue produced a quote.
	// Fatal to the whole operation.
	CodeNoRouteFound Code = "NO_ROUTE_FOUND"

	// CodeSignerMisconfigured marks missing signing credentials. Fatal at
	// construction time; no fallback possible.
	CodeSignerMisconfigured Code = "SIGNER_MISCONFIGURED"

	// General codes.
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeRPCError           Code = "RPC_ERROR"
	CodeExecutionFailed    Code = "EXECUTION_FAILED"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// messages maps error codes to human-readable messages.
var messages = map[Code]string{
	CodeAdapterFailure:      "Quote source unavailable",
	CodePreparationFailure:  "Quote could not be prepared for execution",
	CodeSimulationRejected:  "Bundle simulation reported a revert",
	CodeRelayNotIncluded:    "Bundle not included in target block",
	CodeNoRouteFound:        "No route found for the requested swap",
	CodeSignerMisconfigured: "Signer credentials missing or invalid",
	CodeConfigurationError:  "Configuration error",
	CodeInvalidInput:        "Invalid input provided",
	CodeRPCError:            "Chain RPC call failed",
	CodeExecutionFailed:     "Execution failed",
	CodeUnknownError:        "An unknown error occurred",
}
