package api

import "github.com/dfryer1193/evstations/station/domain"

// Station is the wire form of a station record.
type Station struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
	Address string  `json:"address"`
	Image   string  `json:"image"`
}

// StationForm is the form or multipart body accepted on create and update.
// The image part is read separately.
type StationForm struct {
	Name    string   `form:"name" binding:"required"`
	Price   *float64 `form:"price" binding:"required"`
	Address string   `form:"address" binding:"required"`
}

// ListQuery holds the optional query parameters of the station listing.
type ListQuery struct {
	Limit *int    `form:"limit"`
	Sort  *string `form:"sort"`
	Param *string `form:"param"`
}

func FromDomain(s *domain.Station) Station {
	return Station{
		ID:      s.ID,
		Name:    s.Name,
		Price:   s.Price,
		Address: s.Address,
		Image:   s.ImageRef,
	}
}

func FromDomainList(stations []*domain.Station) []Station {
	out := make([]Station, 0, len(stations))
	for _, s := range stations {
		out = append(out, FromDomain(s))
	}
	return out
}
