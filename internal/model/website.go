package model

import "time"

type Website struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Name      string    `db:"name" json:"name"`
	FileName  string    `db:"file_name" json:"fileName"`
	URL       string    `db:"url" json:"url"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Folder is the first path segment of FileName ("mysite/index.html" -> "mysite").
func (w *Website) Folder() string {
	for i := 0; i < len(w.FileName); i++ {
		if w.FileName[i] == '/' {
			return w.FileName[:i]
		}
	}
	return w.FileName
}

type SaveWebsiteParams struct {
	UserID   string
	Name     string
	FileName string
	URL      string
}
