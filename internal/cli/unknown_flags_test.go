package cli

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownFlag_ShowsHelpAndUsageError(t *testing.T) {
	t.Parallel()
	for _, sub := range []string{"generate", "check", "init"} {
		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs([]string{sub, "--unknown-flag"})

		err := root.Execute()
		require.Error(t, err, sub)
		assert.IsType(t, usageError{}, err, sub)
		assert.Contains(t, err.Error(), "unknown flag", sub)
		assert.Contains(t, err.Error(), "Usage:", sub)
	}
}
