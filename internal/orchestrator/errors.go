package orchestrator

// ErrorCode is a table-driven mapping from a stable machine code to the
// status an HTTP layer would use and a default user-facing sentence.
type ErrorCode struct {
	Code    string
	Status  int
	Answer  string
}

var errorCodes = map[string]ErrorCode{
	"SESSION_NOT_FOUND": {Code: "SESSION_NOT_FOUND", Status: 404, Answer: "I couldn't find that session. Please start a new one."},
	"SESSION_EXPIRED":   {Code: "SESSION_EXPIRED", Status: 410, Answer: "Your session has expired. Please start a new one."},
	"RATE_LIMITED":      {Code: "RATE_LIMITED", Status: 429, Answer: "You've sent too many requests. Please wait before trying again."},
	"NO_SYMBOL":         {Code: "NO_SYMBOL", Status: 400, Answer: "I couldn't figure out which symbol you mean. Try naming a stock, crypto, or currency pair."},
	"NO_INDICATOR":      {Code: "NO_INDICATOR", Status: 400, Answer: "I couldn't figure out which indicator you want."},
	"MISSING_CURRENCIES": {Code: "MISSING_CURRENCIES", Status: 400, Answer: "I need both a source and a target currency to convert."},
	"MCP_ERROR":          {Code: "MCP_ERROR", Status: 502, Answer: "The market-data service is unavailable right now."},
	"PROCESSING_ERROR":   {Code: "PROCESSING_ERROR", Status: 400, Answer: "I couldn't process that request."},
	"INTERNAL_ERROR":     {Code: "INTERNAL_ERROR", Status: 500, Answer: "Something went wrong on our end."},
}

// ErrorDetail is the error object embedded in an ErrorEnvelope.
type ErrorDetail struct {
	Code               string `json:"code"`
	Message            string `json:"message"`
	RetryAfterSeconds  *int   `json:"retry_after_seconds,omitempty"`
	RequestsMade       *int   `json:"requests_made,omitempty"`
	RequestsLimit      *int   `json:"requests_limit,omitempty"`
}

// ErrorEnvelope is the failure-path response shape.
type ErrorEnvelope struct {
	Answer     string      `json:"answer"`
	Error      ErrorDetail `json:"error"`
	CachedData any         `json:"cached_data,omitempty"`
}

func newError(code, detail string) *ErrorEnvelope {
	ec, ok := errorCodes[code]
	if !ok {
		ec = errorCodes["INTERNAL_ERROR"]
	}
	msg := detail
	if msg == "" {
		msg = ec.Answer
	}
	return &ErrorEnvelope{
		Answer: ec.Answer,
		Error:  ErrorDetail{Code: ec.Code, Message: msg},
	}
}

func newRateLimitedError(requestsMade, requestsLimit, retryAfter int) *ErrorEnvelope {
	env := newError("RATE_LIMITED", "")
	env.Error.RetryAfterSeconds = &retryAfter
	env.Error.RequestsMade = &requestsMade
	env.Error.RequestsLimit = &requestsLimit
	return env
}
