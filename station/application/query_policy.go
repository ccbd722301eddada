package application

import (
	"strings"

	"github.com/dfryer1193/evstations/station/domain"
)

// Recognised values of the sort field parameter.
const (
	SortFieldStationName    = "station_name"
	SortFieldStationPricing = "station_pricing"
	SortDirectionAscending  = "asc"
)

// ResolveOrder maps a sort direction and field to an OrderSpec. Both are matched
// case-insensitively. Only "asc" sorts ascending; anything else sorts descending.
// Unrecognised fields order by id. Neither input ever produces an error.
func ResolveOrder(direction, field string) domain.OrderSpec {
	order := domain.OrderSpec{
		Field:     domain.OrderByID,
		Ascending: strings.EqualFold(direction, SortDirectionAscending),
	}

	switch strings.ToLower(field) {
	case SortFieldStationName:
		order.Field = domain.OrderByName
	case SortFieldStationPricing:
		order.Field = domain.OrderByPrice
	}

	return order
}
