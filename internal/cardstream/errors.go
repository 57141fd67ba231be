package cardstream

import (
	"errors"
	"fmt"
)

var (
	ErrNoJSONObject  = errors.New("no JSON object found in response")
	ErrNoFlashcards  = errors.New("response contains no flashcards")
	ErrInvalidFormat = errors.New("response JSON could not be parsed")
)

// MalformedResponseError is returned by Finalize when the finished response holds
// no usable flashcards array. Raw carries the full model output.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed generation response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
