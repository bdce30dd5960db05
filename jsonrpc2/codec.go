package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ResponseTypes recalls which method an outstanding request was issued for,
// so a response result can be decoded into that method's result type.
type ResponseTypes interface {
	ResponseMethod(id RequestID) (Method, bool)
}

// Codec converts between frame payloads and Messages.
type Codec struct {
	Registry *Registry
	// MaxPayload bounds encoded and decoded payloads. Zero disables the check.
	MaxPayload int
	// Responses is consulted to type response results. If nil, results stay
	// json.RawMessage.
	Responses ResponseTypes
}

// DecodeError is a decoding failure that still identified enough of the
// message to answer it. The connection stays usable.
type DecodeError struct {
	ID   *RequestID
	Kind Kind
	Err  *ResponseError
}

func (err *DecodeError) Error() string {
	if err.ID == nil {
		return fmt.Sprintf("jsonrpc2: decode failed: %s", err.Err)
	}
	return fmt.Sprintf("jsonrpc2: decode %s %s failed: %s", err.Kind, err.ID, err.Err)
}

func (err *DecodeError) Unwrap() error {
	return err.Err
}

type envelope struct {
	Version json.RawMessage `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error"`
}

type wireRequest struct {
	Version fixedVersion `json:"jsonrpc"`
	ID      RequestID    `json:"id"`
	Method  string       `json:"method"`
	Params  interface{}  `json:"params,omitempty"`
}

type wireNotification struct {
	Version fixedVersion `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  interface{}  `json:"params,omitempty"`
}

type wireResponse struct {
	Version fixedVersion `json:"jsonrpc"`
	ID      RequestID    `json:"id"`
	Result  interface{}  `json:"result"`
}

type wireError struct {
	Version fixedVersion   `json:"jsonrpc"`
	ID      *RequestID     `json:"id"`
	Error   *ResponseError `json:"error"`
}

// Decode parses a payload.
//
// Oversized payloads fail with ErrPayloadTooLarge. Malformed JSON fails with
// a ParseError *DecodeError if an id can still be read from it, and with
// ErrBadPayload otherwise. Well-formed payloads that are not valid messages, or
// whose params or result do not fit the registered types, fail with a
// *DecodeError; the returned Message is then non-nil when the kind was
// recognized.
func (c *Codec) Decode(data []byte) (*Message, error) {
	if c.MaxPayload > 0 && len(data) > c.MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	if isArray(data) {
		return nil, &DecodeError{Err: NewError(ErrCodeInvalidRequest, "batch requests are not supported")}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		id := recoverID(data)
		if id == nil {
			return nil, fmt.Errorf("%w: %s", ErrBadPayload, err)
		}
		code := ErrCodeParse
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			code = ErrCodeInvalidRequest
		}
		kind := KindRequest
		if c.Responses != nil {
			// An id we are waiting on means the damaged message was our reply.
			if _, ok := c.Responses.ResponseMethod(*id); ok {
				kind = KindResponse
			}
		}
		return nil, &DecodeError{ID: id, Kind: kind, Err: NewError(code, "%s", err)}
	}

	var id *RequestID
	if !isNull(env.ID) {
		id = new(RequestID)
		if err := id.UnmarshalJSON(env.ID); err != nil {
			return nil, &DecodeError{Err: NewError(ErrCodeInvalidRequest, "%s", err)}
		}
	}
	if len(env.Version) > 0 {
		if err := (fixedVersion{}).UnmarshalJSON(env.Version); err != nil {
			return nil, &DecodeError{ID: id, Err: NewError(ErrCodeInvalidRequest, "%s", err)}
		}
	}

	switch {
	case env.Method != nil && id != nil:
		return c.decodeRequest(*id, *env.Method, env.Params)
	case env.Method != nil:
		return c.decodeNotification(*env.Method, env.Params)
	case env.Error != nil:
		return newErrorMessage(id, env.Error), nil
	case id != nil && env.Result != nil:
		return c.decodeResponse(*id, env.Result)
	}
	return nil, &DecodeError{ID: id, Err: NewError(ErrCodeInvalidRequest, "not a request, notification or response")}
}

func (c *Codec) decodeRequest(id RequestID, method string, raw json.RawMessage) (*Message, error) {
	msg := newRequestMessage(id, method, raw)
	m, ok := c.Registry.LookupRequest(method)
	if !ok {
		// Left raw; dispatch answers with MethodNotFound.
		return msg, nil
	}
	params, err := m.decodeParams(raw)
	if err != nil {
		return msg, &DecodeError{
			ID:   &id,
			Kind: KindRequest,
			Err:  NewError(ErrCodeInvalidParams, "invalid params for %s: %s", method, err),
		}
	}
	msg.Params = params
	return msg, nil
}

func (c *Codec) decodeNotification(method string, raw json.RawMessage) (*Message, error) {
	msg := newNotificationMessage(method, raw)
	m, ok := c.Registry.LookupNotification(method)
	if !ok {
		return msg, nil
	}
	params, err := m.decodeParams(raw)
	if err != nil {
		return msg, &DecodeError{
			Kind: KindNotification,
			Err:  NewError(ErrCodeInvalidParams, "invalid params for %s: %s", method, err),
		}
	}
	msg.Params = params
	return msg, nil
}

func (c *Codec) decodeResponse(id RequestID, raw json.RawMessage) (*Message, error) {
	msg := newResponseMessage(id, raw)
	if c.Responses == nil {
		return msg, nil
	}
	m, ok := c.Responses.ResponseMethod(id)
	if !ok {
		return msg, nil
	}
	result, err := m.decodeResult(raw)
	if err != nil {
		return msg, &DecodeError{
			ID:   &id,
			Kind: KindResponse,
			Err:  NewError(ErrCodeParse, "invalid result for %s: %s", m.Name(), err),
		}
	}
	msg.Result = result
	return msg, nil
}

// Encode serializes msg. Every message carries "jsonrpc":"2.0", responses
// always carry a result member, and error responses without an id carry
// "id":null.
func (c *Codec) Encode(msg *Message) ([]byte, error) {
	var v interface{}
	switch msg.Kind {
	case KindRequest:
		if msg.ID == nil {
			return nil, fmt.Errorf("%w: request without id", ErrBadPayload)
		}
		v = wireRequest{ID: *msg.ID, Method: msg.Method, Params: msg.Params}
	case KindNotification:
		v = wireNotification{Method: msg.Method, Params: msg.Params}
	case KindResponse:
		if msg.ID == nil {
			return nil, fmt.Errorf("%w: response without id", ErrBadPayload)
		}
		v = wireResponse{ID: *msg.ID, Result: msg.Result}
	case KindError:
		v = wireError{ID: msg.ID, Error: msg.Error}
	default:
		return nil, fmt.Errorf("%w: unknown message kind %d", ErrBadPayload, int(msg.Kind))
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadPayload, err)
	}
	if c.MaxPayload > 0 && len(data) > c.MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	return data, nil
}

// recoverID scans the top-level members of a payload that failed to parse
// and returns its id, if one was readable before the damage.
func recoverID(data []byte) *RequestID {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil
		}
		if key != "id" {
			continue
		}
		if isNull(value) {
			return nil
		}
		id := new(RequestID)
		if err := id.UnmarshalJSON(value); err != nil {
			return nil
		}
		return id
	}
	return nil
}
