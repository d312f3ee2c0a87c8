package domain

import "time"

// LinkField names a unique column of the links collection.
type LinkField string

const (
	FieldLong  LinkField = "long"
	FieldShort LinkField = "short"
)

// MaxURLLength bounds long URLs so they fit the unique index on links.long.
const MaxURLLength = 2048

type Link struct {
	ID        int64     `json:"id"`
	Long      string    `json:"long_url"`
	Short     string    `json:"short_key"`
	CreatedAt time.Time `json:"created_at"`
}

type ShortenRequest struct {
	URL string `json:"url" form:"url" validate:"required,url,max=2048"`
}
