package utils_test

import (
	"testing"

	"github.com/jrsteele09/lms-oauth-gateway/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestPtrOrNil(t *testing.T) {
	require.Nil(t, utils.PtrOrNil(""))
	require.Nil(t, utils.PtrOrNil(0))
	require.Equal(t, "rt", *utils.PtrOrNil("rt"))
}
