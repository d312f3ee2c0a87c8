package domain

import "time"

type LinkStats struct {
	ShortKey      string       `json:"short_key"`
	LongURL       string       `json:"long_url"`
	CreatedAt     time.Time    `json:"created_at"`
	TotalVisits   int64        `json:"total_visits"`
	UniqueIPs     int64        `json:"unique_ips"`
	LastVisitedAt *time.Time   `json:"last_visited_at"`
	TopCountries  []CountStats `json:"top_countries"`
	TopBrowsers   []CountStats `json:"top_browsers"`
	TopCampaigns  []CountStats `json:"top_campaigns"`
}

type CountStats struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}
