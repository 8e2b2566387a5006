package models

type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Count   *int         `json:"count,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
