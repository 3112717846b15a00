package model

type User struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Name     *string `json:"name,omitempty"`
	TimeZone string  `json:"time_zone"`
	Ctime    int64   `json:"ctime"`
	Mtime    int64   `json:"mtime"`
}
