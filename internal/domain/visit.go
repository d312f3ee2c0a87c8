package domain

import "time"

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeoInfo carries whatever the geo database knows about an address.
// Every attribute is independently optional.
type GeoInfo struct {
	Continent    *string   `json:"continent,omitempty"`
	Country      *string   `json:"country,omitempty"`
	Subdivisions []string  `json:"subdivisions,omitempty"`
	City         *string   `json:"city,omitempty"`
	Location     *GeoPoint `json:"location,omitempty"`
}

type Visit struct {
	ID        int64     `json:"id"`
	LinkID    int64     `json:"link_id"`
	ShortKey  string    `json:"short_key"`
	VisitedAt time.Time `json:"visited_at"`

	IPAddress      *string `json:"ip_address,omitempty"`
	UserAgent      *string `json:"user_agent,omitempty"`
	Browser        *string `json:"browser,omitempty"`
	BrowserVersion *string `json:"browser_version,omitempty"`
	Platform       *string `json:"platform,omitempty"`
	Language       *string `json:"language,omitempty"`

	Continent    *string   `json:"continent,omitempty"`
	Country      *string   `json:"country,omitempty"`
	Subdivisions []string  `json:"subdivisions,omitempty"`
	City         *string   `json:"city,omitempty"`
	Location     *GeoPoint `json:"location,omitempty"`

	Campaign        *string `json:"campaign,omitempty"`
	CampaignSource  *string `json:"campaign_source,omitempty"`
	CampaignMedium  *string `json:"campaign_medium,omitempty"`
	CampaignTerm    *string `json:"campaign_term,omitempty"`
	CampaignContent *string `json:"campaign_content,omitempty"`
}

// ApplyGeo copies the attributes present in info onto v.
func (v *Visit) ApplyGeo(info *GeoInfo) {
	if info == nil {
		return
	}
	v.Continent = info.Continent
	v.Country = info.Country
	v.Subdivisions = info.Subdivisions
	v.City = info.City
	v.Location = info.Location
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
