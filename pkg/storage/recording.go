package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"ephys-cam/pkg/storage/consts"
	"ephys-cam/pkg/storage/util"
)

const maxSuffix = 1000

// Recording names the files one camera produces during one session:
// <outputDir>/<subject>/<subject>_<camera>_<stamp>{.avi,_timestamps.json,_meta.json}.
// When those names are taken, _1, _2, ... is appended to the stamp.
type Recording struct {
	Subject   string    `json:"subject"`
	Camera    string    `json:"camera"`
	StartedAt time.Time `json:"startedAt"`

	dir  string
	base string
}

func NewRecording(outputDir, subject, camera string, startedAt time.Time) (*Recording, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("output dir can not be empty")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject can not be empty")
	}
	if camera == "" {
		return nil, fmt.Errorf("camera name can not be empty")
	}
	r := &Recording{
		Subject:   subject,
		Camera:    camera,
		StartedAt: startedAt,
		dir:       filepath.Join(outputDir, sanitize(subject)),
	}
	if err := util.MkdirAll(r.dir); err != nil {
		return nil, err
	}
	base := fmt.Sprintf("%s_%s_%s", sanitize(subject), sanitize(camera), startedAt.Format(consts.StampLayout))
	r.base = base
	for n := 1; ; n++ {
		taken, err := r.taken()
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		if n > maxSuffix {
			return nil, fmt.Errorf("no free file name for %s in %s", base, r.dir)
		}
		r.base = fmt.Sprintf("%s_%d", base, n)
	}

	return r, nil
}

// taken reports whether any file of the recording already exists. Stamps only
// resolve to the second, so a quick restart would otherwise reuse the names.
func (r *Recording) taken() (bool, error) {
	for _, p := range []string{r.VideoPath(), r.TimestampsPath(), r.MetadataPath()} {
		_, err := os.Stat(p)
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

func (r *Recording) Dir() string {
	return r.dir
}

func (r *Recording) VideoPath() string {
	return filepath.Join(r.dir, r.base+consts.DefaultVideoExt)
}

func (r *Recording) TimestampsPath() string {
	return filepath.Join(r.dir, r.base+consts.DefaultTimestampsFile)
}

func (r *Recording) MetadataPath() string {
	return filepath.Join(r.dir, r.base+consts.DefaultMetadataFile)
}

func (r *Recording) SaveTimestamps(v any) error {
	return dump(r.TimestampsPath(), v)
}

func (r *Recording) SaveMetadata(v any) error {
	return dump(r.MetadataPath(), v)
}

func dump(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, consts.DefaultFilePerm)
}

func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s err: %w", path, err)
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s err: %w", path, err)
	}

	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}
