package sharpedge

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDefaultLevelsIsError(t *testing.T) {
	p := New(logrus.WithField("test", true))
	err := p.Check(ReassignTracedContainer, "x[0] = y reassigns a traced tensor")
	assert.Error(t, err)
}

func TestWarnLogsAndReturnsNil(t *testing.T) {
	p := New(logrus.WithField("test", true))
	err := p.Check(MixedConcreteSymbolicCompare, "comparing concrete 3 to symbolic n0")
	assert.NoError(t, err)
}

func TestAllowSuppressesEntirely(t *testing.T) {
	p := New(logrus.WithField("test", true))
	p.Set(ReassignTracedContainer, Allow)
	err := p.Check(ReassignTracedContainer, "whatever")
	assert.NoError(t, err)
}

func TestUnknownEdgeDefaultsToError(t *testing.T) {
	p := New(logrus.WithField("test", true))
	assert.Equal(t, Error, p.Level(Edge("not_a_real_edge")))
}
