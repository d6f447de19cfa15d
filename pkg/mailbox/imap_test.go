package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTimeout_Expires(t *testing.T) {
	unblock := make(chan struct{})
	aborted := false

	err := commandTimeout(context.Background(), 20*time.Millisecond, "fetch",
		func() {
			aborted = true
			close(unblock)
		},
		func() error {
			// A command stuck on a dead connection only returns once the
			// connection is torn down.
			<-unblock
			return errors.New("imapclient: connection closed")
		})

	require.Error(t, err)
	assert.True(t, aborted, "a stuck command must be aborted to unblock it")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "fetch timed out")
}

func TestCommandTimeout_FastPath(t *testing.T) {
	sentinel := errors.New("no such folder")
	aborted := false

	err := commandTimeout(context.Background(), time.Second, "select",
		func() { aborted = true },
		func() error { return sentinel })

	assert.Equal(t, sentinel, err, "command errors pass through unwrapped")
	assert.False(t, aborted)
}

func TestCommandTimeout_Success(t *testing.T) {
	aborted := false

	err := commandTimeout(context.Background(), time.Second, "store",
		func() { aborted = true },
		func() error { return nil })

	assert.NoError(t, err)
	assert.False(t, aborted, "abort must not fire on a completed command")
}
