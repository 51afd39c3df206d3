package log

import (
	"bytes"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WarnLevel)
	l.Info("hidden")
	l.Warn("shown", String("key", "value"))
	assert.Assert(t, !strings.Contains(buf.String(), "hidden"))
	assert.Assert(t, is.Contains(buf.String(), `"msg":"shown"`))
	assert.Assert(t, is.Contains(buf.String(), `"key":"value"`))
	assert.Equal(t, l.Named("x").Level(), WarnLevel)
}

func TestFiltered(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, DebugLevel)
	l, err := base.Filtered("grid*")
	assert.NilError(t, err)
	l.Named("grid").Info("from grid")
	l.Named("grid").Named("position").Debug("from position")
	l.Named("nats").Info("from nats")
	out := buf.String()
	assert.Assert(t, is.Contains(out, "from grid"))
	assert.Assert(t, is.Contains(out, "from position"))
	assert.Assert(t, !strings.Contains(out, "from nats"))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	assert.NilError(t, err)
	assert.Equal(t, lvl, DebugLevel)
	_, err = ParseLevel("chatty")
	assert.Assert(t, err != nil)
}
