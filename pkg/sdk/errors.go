package sdk

import "fmt"

// APIError is a non-2xx response from the casedex API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("casedex: %s (%s, http %d)", e.Message, e.Code, e.Status)
}
