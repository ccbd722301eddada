package application

import (
	"testing"

	"github.com/dfryer1193/evstations/station/domain"
)

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name      string
		direction string
		field     string
		expected  domain.OrderSpec
	}{
		{
			name:      "name ascending",
			direction: "asc",
			field:     "station_name",
			expected:  domain.OrderSpec{Field: domain.OrderByName, Ascending: true},
		},
		{
			name:      "price descending",
			direction: "desc",
			field:     "station_pricing",
			expected:  domain.OrderSpec{Field: domain.OrderByPrice},
		},
		{
			name:      "mixed case",
			direction: "ASC",
			field:     "Station_Pricing",
			expected:  domain.OrderSpec{Field: domain.OrderByPrice, Ascending: true},
		},
		{
			name:      "unknown field falls back to id",
			direction: "asc",
			field:     "bogus_field",
			expected:  domain.OrderSpec{Field: domain.OrderByID, Ascending: true},
		},
		{
			name:      "empty field falls back to id",
			direction: "desc",
			field:     "",
			expected:  domain.OrderSpec{Field: domain.OrderByID},
		},
		{
			name:      "garbage direction is descending",
			direction: "sideways",
			field:     "station_name",
			expected:  domain.OrderSpec{Field: domain.OrderByName},
		},
		{
			name:      "empty direction is descending",
			direction: "",
			field:     "default",
			expected:  domain.OrderSpec{Field: domain.OrderByID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolveOrder(tt.direction, tt.field)
			if result != tt.expected {
				t.Errorf("ResolveOrder(%q, %q) = %+v, want %+v", tt.direction, tt.field, result, tt.expected)
			}
		})
	}
}
