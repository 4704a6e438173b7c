package runerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("docker: daemon not running")
	err := Wrap(base, KindProvisioning, "start runtime")

	require.Error(t, err)
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, KindProvisioning, KindOf(err))
	assert.Equal(t, "start runtime: docker: daemon not running", err.Error())
	assert.Nil(t, Wrap(nil, KindBuild, "ignored"))
}

func TestKindOfSeesThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", New(KindReadiness, "environment never became ready"))
	assert.Equal(t, KindReadiness, KindOf(err))
	assert.True(t, Is(err, KindReadiness))
	assert.False(t, Is(err, KindBuild))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestAttrRendersExpectedAndActual(t *testing.T) {
	err := New(KindGeometryMismatch, "work area mismatch for top50")
	err = Attr(err, "expected", "[(0, 51, 1600, 849)]")
	err = Attr(err, "actual", "[(0, 27, 1600, 873)]")

	assert.Equal(t,
		`work area mismatch for top50 (actual="[(0, 27, 1600, 873)]", expected="[(0, 51, 1600, 849)]")`,
		err.Error())

	v, ok := GetAttr(err, "expected")
	require.True(t, ok)
	assert.Equal(t, "[(0, 51, 1600, 849)]", v)
}

func TestAttrOnPlainError(t *testing.T) {
	err := Attr(errors.New("boom"), "step", 3)
	assert.Equal(t, KindUnknown, KindOf(err))
	v, ok := GetAttr(err, "step")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{New(KindConfig, "x"), ExitUsage},
		{New(KindProvisioning, "x"), ExitProvisioning},
		{New(KindReadiness, "x"), ExitReadiness},
		{New(KindBuild, "x"), ExitBuild},
		{New(KindTestFailure, "x"), ExitFailed},
		{New(KindGeometryMismatch, "x"), ExitFailed},
		{errors.New("x"), ExitFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "error %v", tt.err)
	}
}

func TestJoinReportsMostSevereKind(t *testing.T) {
	suite := New(KindTestFailure, "2 of 5 tests failed")
	geo := Wrap(errors.New("no active window"), KindReadiness, "environment not ready")

	err := Join(suite, geo)
	assert.Equal(t, KindReadiness, KindOf(err))
	assert.Equal(t, ExitReadiness, ExitCode(err))
	assert.True(t, errors.Is(err, suite))

	assert.Equal(t, KindTestFailure, KindOf(Join(nil, suite)))
	assert.NoError(t, Join(nil, nil))
}

func TestFatalKinds(t *testing.T) {
	for _, k := range []Kind{KindConfig, KindProvisioning, KindReadiness, KindBuild} {
		assert.True(t, k.Fatal(), k.String())
	}
	for _, k := range []Kind{KindTestFailure, KindGeometryMismatch, KindBaselineMissing} {
		assert.False(t, k.Fatal(), k.String())
	}
}
