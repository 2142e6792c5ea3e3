package server

import "encoding/json"

// Data is the tagged payload of a successful response, encoded as
// {"type":"<variant>","data":<payload>}.
type Data struct {
	kind    string
	payload any
}

// StringData wraps a plain string payload.
func StringData(s string) Data { return Data{kind: "String", payload: s} }

// JSONData wraps an arbitrary JSON-marshalable payload.
func JSONData(v any) Data { return Data{kind: "Json", payload: v} }

// ListData wraps an ordered string list.
func ListData(items []string) Data { return Data{kind: "List", payload: items} }

// SetData wraps set members.
func SetData(members []string) Data { return Data{kind: "Set", payload: members} }

// SessionData wraps a session descriptor.
func SessionData(v any) Data { return Data{kind: "Session", payload: v} }

// BatchData wraps per-key results of a batched command.
func BatchData(results map[string]string) Data { return Data{kind: "Batch", payload: results} }

// NoneData signals an intentionally empty result.
func NoneData(reason string) Data { return Data{kind: "None", payload: reason} }

// ErrorData wraps an error detail carried inside a success envelope.
func ErrorData(detail string) Data { return Data{kind: "Error", payload: detail} }

// MarshalJSON emits the tagged form.
func (d Data) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{d.kind, d.payload})
}

// Response is the single-line JSON envelope every command reply uses.
type Response struct {
	Status  string  `json:"status"`
	Message *string `json:"message"`
	Data    *Data   `json:"data"`
}

// Success builds a success envelope around data.
func Success(data Data) Response {
	return Response{Status: "success", Data: &data}
}

// Error builds an error envelope with a message and no data.
func Error(message string) Response {
	return Response{Status: "error", Message: &message}
}

// Encode renders the envelope as one CRLF-terminated line. Encoding an
// envelope never fails for the payload types the dispatcher produces; a
// marshal error degrades to a generic error line.
func (r Response) Encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","message":"INTERNAL_ENCODING_ERROR","data":null}` + "\r\n"
	}
	return string(b) + "\r\n"
}
