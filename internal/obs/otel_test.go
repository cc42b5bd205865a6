package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracer_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "consult-backend", "", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
