package result

import (
	"errors"
	"strings"
)

// Results is the outcome of a batch of operations, one entry per attempt
type Results []Result

// OK returns true if no result is an error. An empty batch is OK.
func (rs Results) OK() bool {
	for _, r := range rs {
		if r.IsError() {
			return false
		}
	}
	return true
}

// Failed returns true if the batch is non-empty and every result is an error
func (rs Results) Failed() bool {
	if len(rs) == 0 {
		return false
	}
	for _, r := range rs {
		if !r.IsError() {
			return false
		}
	}
	return true
}

// Partial returns true if the batch holds both errors and non-errors
func (rs Results) Partial() bool {
	return !rs.OK() && !rs.Failed()
}

// Errors returns only the error results
func (rs Results) Errors() Results {
	var out Results
	for _, r := range rs {
		if r.IsError() {
			out = append(out, r)
		}
	}
	return out
}

// Codes returns the code of every result in order
func (rs Results) Codes() []Code {
	codes := make([]Code, len(rs))
	for i, r := range rs {
		codes[i] = r.Code()
	}
	return codes
}

// Err folds the error results into a single Go error, or nil when OK
func (rs Results) Err() error {
	errs := rs.Errors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, r := range errs {
		msgs[i] = string(r.Code()) + ": " + r.Message()
	}
	return errors.New(strings.Join(msgs, "; "))
}
