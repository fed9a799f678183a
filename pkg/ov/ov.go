package ov

// StartRecording is the body of POST /api/recording.
type StartRecording struct {
	Subject string `json:"subject" binding:"required"`
}

type UpdateExposure struct {
	Exposure *float64 `json:"exposure" binding:"required"`
}

type Exposure struct {
	Index    int     `json:"index"`
	Exposure float64 `json:"exposure"`
}

type Webdav struct {
	Running bool   `json:"running"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port"`
}

type Details struct {
	Cams     int      `json:"cams"`
	Subjects []string `json:"subjects"`
}
