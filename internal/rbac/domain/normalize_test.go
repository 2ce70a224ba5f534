package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoleNames(t *testing.T) {
	got := NormalizeRoleNames([]string{" Admin", "member", "", "ADMIN ", "  ", "Organization_Manager"})
	assert.Equal(t, []string{"admin", "member", "organization_manager"}, got)
	assert.Empty(t, NormalizeRoleNames(nil))
}
