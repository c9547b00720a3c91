package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryCovers(t *testing.T) {
	tests := []struct {
		grant    Category
		want     Category
		expected bool
	}{
		{CategoryVisitation, CategoryVisitation, true},
		{CategoryBoth, CategoryVisitation, true},
		{CategoryBoth, CategoryObituary, true},
		{CategoryObituary, CategoryVisitation, false},
		{CategoryVisitation, CategoryObituary, false},
		{CategoryVisitation, "", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.grant.Covers(tt.want), "%s covers %s", tt.grant, tt.want)
	}
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryBoth.Valid())
	assert.False(t, Category("poster").Valid())
}
