package shorts

// エラーコードの閉集合。HTTPステータスへの対応は http.go の respondWithError が持ちます。
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeAlreadyProcessing   = "ALREADY_PROCESSING"
	CodeJobNotFound         = "JOB_NOT_FOUND"
	CodeExternalTaskFailed  = "EXTERNAL_TASK_FAILED"
	CodeProtocolViolation   = "EXTERNAL_PROTOCOL_VIOLATION"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error はAPI応答およびジョブ記録に使用する分類済みエラーです。
type Error struct {
	Code    string
	Message string
	cause   error
}

// Error は error インターフェースを実装します。
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap は原因エラーを返します。
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}
