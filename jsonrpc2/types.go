package jsonrpc2

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const Version = "2.0"

// ErrorCode is the code of a ResponseError.
type ErrorCode int

const (
	ErrCodeParse                ErrorCode = -32700
	ErrCodeInvalidRequest       ErrorCode = -32600
	ErrCodeMethodNotFound       ErrorCode = -32601
	ErrCodeInvalidParams        ErrorCode = -32602
	ErrCodeInternal             ErrorCode = -32603
	ErrCodeServerNotInitialized ErrorCode = -32002
	ErrCodeUnknown              ErrorCode = -32001
	ErrCodeRequestCancelled     ErrorCode = -32800
)

func (code ErrorCode) String() string {
	switch code {
	case ErrCodeParse:
		return "ParseError"
	case ErrCodeInvalidRequest:
		return "InvalidRequest"
	case ErrCodeMethodNotFound:
		return "MethodNotFound"
	case ErrCodeInvalidParams:
		return "InvalidParams"
	case ErrCodeInternal:
		return "InternalError"
	case ErrCodeServerNotInitialized:
		return "ServerNotInitialized"
	case ErrCodeUnknown:
		return "UnknownErrorCode"
	case ErrCodeRequestCancelled:
		return "RequestCancelled"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(code))
}

// ResponseError is the error member of an error response. Handlers can return
// one to control the code that reaches the caller.
type ResponseError struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewError returns a ResponseError with a formatted message.
func NewError(code ErrorCode, format string, args ...interface{}) *ResponseError {
	return &ResponseError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (err *ResponseError) Error() string {
	return fmt.Sprintf("%d: %s", err.Code, err.Message)
}

// ErrorCode returns the numeric code, so callers can inspect errors with
// interface{ ErrorCode() int } without importing this package.
func (err *ResponseError) ErrorCode() int {
	return int(err.Code)
}

// WithData attaches structured data to the error.
func (err *ResponseError) WithData(v interface{}) (*ResponseError, error) {
	data, merr := json.Marshal(v)
	if merr != nil {
		return nil, merr
	}
	err.Data = data
	return err, nil
}

// RequestID is either a string or an integer. The zero value is the number 0.
// RequestIDs are comparable and can be used as map keys.
type RequestID struct {
	str   string
	num   int64
	isStr bool
}

// StringID returns a string RequestID.
func StringID(s string) RequestID {
	return RequestID{str: s, isStr: true}
}

// NumberID returns a numeric RequestID.
func NumberID(n int64) RequestID {
	return RequestID{num: n}
}

// IsString reports whether the id serializes as a JSON string.
func (id RequestID) IsString() bool {
	return id.isStr
}

func (id RequestID) String() string {
	if id.isStr {
		return strconv.Quote(id.str)
	}
	return strconv.FormatInt(id.num, 10)
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request id: %s", data)
	}
	*id = NumberID(n)
	return nil
}

// Kind discriminates the four message shapes.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindError:
		return "error response"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Message is a decoded envelope. Which fields are set depends on Kind:
//
//	KindRequest:      ID, Method, Params
//	KindNotification: Method, Params
//	KindResponse:     ID, Result
//	KindError:        Error, and ID unless the peer replied with a null id
//
// Params and Result hold the registered payload types when the method is
// known, and json.RawMessage otherwise.
type Message struct {
	Kind   Kind
	ID     *RequestID
	Method string
	Params interface{}
	Result interface{}
	Error  *ResponseError
}

func (msg *Message) String() string {
	data, err := (&Codec{}).Encode(msg)
	if err != nil {
		return fmt.Sprintf("invalid %s: %s", msg.Kind, err)
	}
	return string(data)
}

func newRequestMessage(id RequestID, method string, params interface{}) *Message {
	return &Message{Kind: KindRequest, ID: &id, Method: method, Params: params}
}

func newNotificationMessage(method string, params interface{}) *Message {
	return &Message{Kind: KindNotification, Method: method, Params: params}
}

func newResponseMessage(id RequestID, result interface{}) *Message {
	return &Message{Kind: KindResponse, ID: &id, Result: result}
}

func newErrorMessage(id *RequestID, err *ResponseError) *Message {
	return &Message{Kind: KindError, ID: id, Error: err}
}
