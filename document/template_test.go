package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		vars     Variables
		expected string
	}{
		{
			name:     "guest and deceased",
			text:     "Dear [guest_name], thank you for honoring [deceased_name].",
			vars:     Variables{GuestName: "Alex", DeceasedName: "Pat"},
			expected: "Dear Alex, thank you for honoring Pat.",
		},
		{
			name:     "missing guest name",
			text:     "Dear [guest_name], thank you for honoring [deceased_name].",
			vars:     Variables{DeceasedName: "Pat"},
			expected: "Dear Guest, thank you for honoring Pat.",
		},
		{
			name:     "other missing values become empty",
			text:     "[guest_address]|[guest_email]|[book_purchaser_name]",
			vars:     Variables{},
			expected: "||",
		},
		{
			name:     "repeated placeholders",
			text:     "[deceased_name] and [deceased_name]",
			vars:     Variables{DeceasedName: "Pat"},
			expected: "Pat and Pat",
		},
		{
			name:     "unknown placeholder untouched",
			text:     "Hello [nickname], from [your_name]",
			vars:     Variables{PurchaserName: "Jordan Lee"},
			expected: "Hello [nickname], from Jordan Lee",
		},
		{
			name:     "values are not expanded again",
			text:     "[guest_name] wrote to [deceased_name]",
			vars:     Variables{GuestName: "[deceased_name]", DeceasedName: "Pat"},
			expected: "[deceased_name] wrote to Pat",
		},
		{
			name:     "all fields",
			text:     "[guest_name] / [guest_address] / [guest_email] / [book_purchaser_name]",
			vars:     Variables{GuestName: "Alex", GuestAddress: "1 Main St", GuestEmail: "alex@example.com", PurchaserName: "Jordan"},
			expected: "Alex / 1 Main St / alex@example.com / Jordan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.text, tt.vars))
		})
	}
}
