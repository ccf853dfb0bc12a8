package models

import "time"

// Cat is a cat profile. PhotoIDs is the ordered list of Photo records
// belonging to the cat; the Photo records hold the actual image data.
type Cat struct {
	ID        string
	Name      string
	Age       int
	Breed     string
	PhotoIDs  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Photo struct {
	ID          string    `json:"_id"`
	CatID       string    `json:"cat"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"-"`
}

// CatView is a Cat with its photos resolved, as returned to clients.
type CatView struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Breed     string    `json:"breed"`
	Photos    []*Photo  `json:"photos"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Populate builds the client view of c from the resolved photos. Photo ids
// that do not resolve are skipped; the cover image is the first resolved photo.
func Populate(c *Cat, photos map[string]*Photo) *CatView {
	view := &CatView{
		ID:        c.ID,
		Name:      c.Name,
		Age:       c.Age,
		Breed:     c.Breed,
		Photos:    make([]*Photo, 0, len(c.PhotoIDs)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, id := range c.PhotoIDs {
		if p, ok := photos[id]; ok {
			view.Photos = append(view.Photos, p)
		}
	}
	if len(view.Photos) > 0 {
		view.ImageURL = view.Photos[0].URL
	}
	return view
}
