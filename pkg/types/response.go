package types

// Envelope is the body of every JSON response. Exactly one of Data and Error
// is set. Notices holds shopper-facing messages raised while serving the
// request and may accompany either.
type Envelope struct {
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Notices any       `json:"notices,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
