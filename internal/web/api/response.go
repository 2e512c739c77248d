package api

import (
	"encoding/json"
	"net/http"

	"github.com/wp-orm/wpmeta/internal/orm/result"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ResultResponse is the JSON form of one result
type ResultResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteResponse reports a staged write and the results of flushing it
type WriteResponse struct {
	Staged  ResultResponse   `json:"staged"`
	Results []ResultResponse `json:"results"`
}

// MetaResponse lists the values of one key
type MetaResponse struct {
	ObjectType string        `json:"object_type"`
	ObjectID   int64         `json:"object_id"`
	Key        string        `json:"key"`
	Values     []interface{} `json:"values"`
}

// ObjectResponse lists every meta of an object by key
type ObjectResponse struct {
	ObjectType string                   `json:"object_type"`
	ObjectID   int64                    `json:"object_id"`
	Keys       []string                 `json:"keys"`
	Meta       map[string][]interface{} `json:"meta"`
}

func toResultResponse(r result.Result) ResultResponse {
	return ResultResponse{
		Status:  r.Status().String(),
		Code:    string(r.Code()),
		Message: r.Message(),
	}
}

// statusFor maps a set of results to 200, 207 or 422
func statusFor(rs result.Results) int {
	switch {
	case rs.OK():
		return http.StatusOK
	case rs.Failed():
		return http.StatusUnprocessableEntity
	default:
		return http.StatusMultiStatus
	}
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, status int, code string, err error) {
	renderJSON(w, status, &ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    code,
	})
}
