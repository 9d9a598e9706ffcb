package rangeheader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllmd-project/launcher/pkg/api"
)

func TestParseOpenEnded(t *testing.T) {
	r, err := Parse("bytes=10-")
	require.NoError(t, err)
	require.Equal(t, int64(10), r.Start)
	require.Nil(t, r.End)
}

func TestParseClosed(t *testing.T) {
	r, err := Parse("bytes=10-39")
	require.NoError(t, err)
	require.Equal(t, int64(10), r.Start)
	require.NotNil(t, r.End)
	require.Equal(t, int64(39), *r.End)
}

func TestParseRejectsSuffixRange(t *testing.T) {
	_, err := Parse("bytes=-500")
	requireBadRequest(t, err)
}

func TestParseRejectsOtherUnit(t *testing.T) {
	_, err := Parse("items=0-10")
	requireBadRequest(t, err)
}

func TestParseRejectsNegative(t *testing.T) {
	_, err := Parse("bytes=-10-20")
	requireBadRequest(t, err)
}

func TestParseRejectsNonInteger(t *testing.T) {
	_, err := Parse("bytes=a-b")
	requireBadRequest(t, err)
}

func TestParseRejectsInverted(t *testing.T) {
	_, err := Parse("bytes=40-10")
	requireBadRequest(t, err)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("bytes=10")
	requireBadRequest(t, err)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	requireBadRequest(t, err)
}

func requireBadRequest(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBadRequest, apiErr.Kind)
}
