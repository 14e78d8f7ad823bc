// ABOUTME: Tests for draft key construction
// ABOUTME: Covers prefixing and skipping empty parts

package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "draft", Key())
	assert.Equal(t, "draft:fuelman:42", Key("fuelman", "42"))
	assert.Equal(t, "draft:oil:7", Key("oil", "", "7"))
}
