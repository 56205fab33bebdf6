package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := NewGenerator()
	id1 := gen.NewID()
	id2 := gen.NewID()

	require.NotEqual(t, id1, id2)

	parsed1, err := goUUID.Parse(id1)
	require.NoError(t, err)
	parsed2, err := goUUID.Parse(id2)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed1.Version())

	// UUID7s generated in sequence sort by creation time.
	require.LessOrEqual(t, parsed1.String(), parsed2.String())
}
