package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLayering(t *testing.T) {
	e := Empty().
		With(map[string]string{"A": "1", "B": "base"}).
		With(map[string]string{"B": "layer", "TOKEN": "t"}).
		Set("C", "${A}-${B}-${MISSING}")

	out := e.Merge([]string{"B=proc", "=skipped", "junk"})
	assert.Equal(t, []string{"A=1", "B=proc", "C=1-proc-${MISSING}", "TOKEN=t"}, out)
}

func TestNewInheritsOS(t *testing.T) {
	t.Setenv("DUTYWATCH_ENV_TEST", "inherited")
	out := Parse(New().Set("DISCORD_TOKEN", "x").Merge(nil))
	assert.Equal(t, "inherited", out["DUTYWATCH_ENV_TEST"])
	assert.Equal(t, "x", out["DISCORD_TOKEN"])
}

func TestExpandUnterminated(t *testing.T) {
	assert.Equal(t, "a${B", expand("a${B", Var{"B": "x"}))
	assert.Equal(t, "x/y", expand("${B}/y", Var{"B": "x"}))
}
