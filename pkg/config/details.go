package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

const (
	keyCams     = "cams"
	keySubjects = "subjects"

	DefaultFilePerm = 0666
)

var ErrUnknownCamera = errors.New("unknown camera")

type Crop struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// CameraConfig is the static setup of one camera, keyed by its enumeration index.
type CameraConfig struct {
	Index     int     `json:"-"`
	Name      string  `json:"name"`
	Crop      Crop    `json:"crop"`
	Rotate    int     `json:"rotate"`
	Exposure  float64 `json:"exposure"`
	OutputDir string  `json:"output_dir"`
}

// Size is the output frame size. The ROI filter runs after the rotation, so
// the crop is expressed in rotated coordinates.
func (c CameraConfig) Size() (width, height int) {
	return c.Crop.Width, c.Crop.Height
}

// Details holds the camera_details.json contents. It is loaded once and never
// mutated afterwards; accessors hand out copies.
type Details struct {
	cams     int
	cameras  map[int]CameraConfig
	subjects []string
}

func NewDetails(subjects []string, cameras ...CameraConfig) *Details {
	d := &Details{
		cams:     len(cameras),
		cameras:  make(map[int]CameraConfig, len(cameras)),
		subjects: slices.Clone(subjects),
	}
	for _, c := range cameras {
		d.cameras[c.Index] = c
	}

	return d
}

// Default mirrors the two camera layout of the rig setup script.
func Default() *Details {
	crop := Crop{Top: 0, Left: 0, Height: 540, Width: 720}
	return NewDetails(
		[]string{"ABXXX"},
		CameraConfig{Index: 0, Name: "ephys_1_lateral", Crop: crop, Exposure: 0.002, OutputDir: "video"},
		CameraConfig{Index: 1, Name: "ephys_1_top", Crop: crop, Exposure: 0.002, OutputDir: "video"},
	)
}

func Load(path string) (*Details, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read camera details err: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Details, error) {
	d := &Details{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("unmarshal camera details err: %w", err)
	}

	return d, nil
}

func (d *Details) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, DefaultFilePerm)
}

func (d *Details) Cams() int {
	return d.cams
}

func (d *Details) Subjects() []string {
	return slices.Clone(d.subjects)
}

func (d *Details) Camera(index int) (CameraConfig, error) {
	c, ok := d.cameras[index]
	if !ok {
		return CameraConfig{}, fmt.Errorf("%w: index %d", ErrUnknownCamera, index)
	}

	return c, nil
}

// Cameras returns every configured camera ordered by index.
func (d *Details) Cameras() []CameraConfig {
	res := make([]CameraConfig, 0, len(d.cameras))
	for _, c := range d.cameras {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Index < res[j].Index })

	return res
}

func (d *Details) Validate() error {
	if d.cams != len(d.cameras) {
		return fmt.Errorf("cams is %d but %d cameras are configured", d.cams, len(d.cameras))
	}
	names := make(map[string]int, len(d.cameras))
	for _, c := range d.Cameras() {
		if c.Name == "" {
			return fmt.Errorf("camera %d: name can not be empty", c.Index)
		}
		if other, ok := names[c.Name]; ok {
			return fmt.Errorf("camera %d: name %q is already used by camera %d", c.Index, c.Name, other)
		}
		names[c.Name] = c.Index
		if c.Crop.Top < 0 || c.Crop.Left < 0 {
			return fmt.Errorf("camera %d: negative crop origin", c.Index)
		}
		if c.Crop.Width <= 0 || c.Crop.Height <= 0 {
			return fmt.Errorf("camera %d: crop size %dx%d", c.Index, c.Crop.Width, c.Crop.Height)
		}
		if c.Rotate%90 != 0 {
			return fmt.Errorf("camera %d: rotation %d is not a multiple of 90", c.Index, c.Rotate)
		}
	}

	return nil
}

func (d *Details) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.cameras)+2)
	m[keyCams] = d.cams
	subjects := d.subjects
	if subjects == nil {
		subjects = []string{}
	}
	m[keySubjects] = subjects
	for i, c := range d.cameras {
		m[strconv.Itoa(i)] = c
	}

	return json.Marshal(m)
}

func (d *Details) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.cameras = make(map[int]CameraConfig)
	d.cams = 0
	d.subjects = nil
	for k, v := range raw {
		switch k {
		case keyCams:
			if err := json.Unmarshal(v, &d.cams); err != nil {
				return fmt.Errorf("%s: %w", keyCams, err)
			}
		case keySubjects:
			if err := json.Unmarshal(v, &d.subjects); err != nil {
				return fmt.Errorf("%s: %w", keySubjects, err)
			}
		default:
			index, err := strconv.Atoi(k)
			if err != nil {
				// unknown top level keys, e.g. labview lines
				continue
			}
			var c CameraConfig
			if err = json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("camera %s: %w", k, err)
			}
			c.Index = index
			d.cameras[index] = c
		}
	}

	return nil
}
