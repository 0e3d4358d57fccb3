package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "test error message",
	}

	assert.Equal(t, "test error message", err.Error())
}

func TestNewValidationErrorf(t *testing.T) {
	err := NewValidationErrorf("data_start_row %d must be after header_row %d", 1, 1)

	assert.Error(t, err)
	assert.Equal(t, "data_start_row 1 must be after header_row 1", err.Error())

	var validationErr *ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestNetworkError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("cycle: %w", &NetworkError{URL: "http://example", Err: cause})

	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch http://example: connection refused", netErr.Error())
}

func TestHTTPStatusError(t *testing.T) {
	err := &HTTPStatusError{URL: "http://example", StatusCode: 503}
	assert.Equal(t, "fetch http://example: unexpected status 503", err.Error())
}

func TestMalformedRecordError(t *testing.T) {
	err := NewMalformedRecordErrorf("total_put_oi", "negative value %d", -4)

	var malformed *MalformedRecordError
	assert.True(t, errors.As(err, &malformed))
	assert.Equal(t, "total_put_oi", malformed.Field)
	assert.Equal(t, "malformed record: total_put_oi: negative value -4", err.Error())
}

func TestStoreWriteError(t *testing.T) {
	cause := errors.New("quota exceeded")

	full := &StoreWriteError{Op: "write_row", Row: 21, Err: cause}
	assert.Equal(t, "write_row row 21: quota exceeded", full.Error())
	assert.ErrorIs(t, full, cause)

	partial := &StoreWriteError{Op: "write_row", Row: 21, Written: 5, Partial: true, Err: cause}
	assert.Equal(t, "write_row row 21: partial write (5 cells written): quota exceeded", partial.Error())
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(ErrConcurrentUpdateRejected))
	assert.True(t, IsRejection(fmt.Errorf("manual: %w", ErrBucketCompleted)))
	assert.True(t, IsRejection(ErrOutsideWindow))
	assert.False(t, IsRejection(errors.New("boom")))
	assert.False(t, IsRejection(nil))
}
