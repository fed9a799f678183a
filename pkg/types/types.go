package types

import (
	"time"
)

type File struct {
	Name    string    `json:"name"`
	Dir     string    `json:"dir"`
	Size    string    `json:"size"`
	Bytes   int64     `json:"bytes"`
	ModTime time.Time `json:"modTime"`
}
