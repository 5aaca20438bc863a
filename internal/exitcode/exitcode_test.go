package exitcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	assert.Equal(t, Success, Code(nil))
	assert.Equal(t, Error, Code(errors.New("boom")))
	assert.Equal(t, ModelFailed, Code(Failed("1 of 2 models failed")))
	assert.Equal(t, Cancelled, Code(Cancel()))
	assert.Equal(t, Cancelled, Code(&ExitError{Code: Cancelled}))
}

func TestExitErrorMessage(t *testing.T) {
	assert.EqualError(t, Failed("1 of 2 models failed"), "1 of 2 models failed")
	assert.EqualError(t, Cancel(), "cancelled")
}
