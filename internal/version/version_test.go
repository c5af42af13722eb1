package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "v1.2.3"
	v, commit, date := Info()
	assert.Equal(t, "v1.2.3", v)
	assert.Equal(t, "v1.2.3 (commit: "+commit+", built: "+date+")", String())
}
