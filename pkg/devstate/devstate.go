// Package devstate reads and writes device-state files: XML snapshots of the
// hardware properties of one camera, named after the camera.
package devstate

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	FileSuffix = "_config.xml"

	KindAbsolute = "absolute"
	KindValue    = "value"
	KindSwitch   = "switch"

	filePerm = 0666
	dirPerm  = 0777
)

type Property struct {
	Name    string `xml:"name,attr"`
	Element string `xml:"element,attr"`
	Kind    string `xml:"kind,attr"`
	Value   string `xml:",chardata"`
}

type State struct {
	XMLName    xml.Name   `xml:"device_state"`
	Device     string     `xml:"device,attr"`
	FrameRate  float64    `xml:"frame_rate,omitempty"`
	Properties []Property `xml:"property"`
}

// Path is the state file of the named camera inside dir.
func Path(dir, cameraName string) string {
	return filepath.Join(dir, cameraName+FileSuffix)
}

func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &State{}
	if err = xml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse device state %s: %w", path, err)
	}

	return s, nil
}

func (s *State) Save(path string) error {
	data, err := xml.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}

	return os.WriteFile(path, append([]byte(xml.Header), data...), filePerm)
}

func (s *State) SetAbsolute(name, element string, v float64) {
	s.set(name, element, KindAbsolute, strconv.FormatFloat(v, 'g', -1, 64))
}

func (s *State) SetValue(name, element string, v int) {
	s.set(name, element, KindValue, strconv.Itoa(v))
}

func (s *State) SetSwitch(name, element string, on bool) {
	s.set(name, element, KindSwitch, strconv.FormatBool(on))
}

func (s *State) set(name, element, kind, value string) {
	for i := range s.Properties {
		p := &s.Properties[i]
		if p.Name == name && p.Element == element {
			p.Kind = kind
			p.Value = value
			return
		}
	}
	s.Properties = append(s.Properties, Property{Name: name, Element: element, Kind: kind, Value: value})
}

func (s *State) Lookup(name, element string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name && p.Element == element {
			return p, true
		}
	}

	return Property{}, false
}

func (p Property) Float() (float64, error) {
	return strconv.ParseFloat(p.Value, 64)
}

func (p Property) Int() (int, error) {
	return strconv.Atoi(p.Value)
}

func (p Property) Bool() (bool, error) {
	return strconv.ParseBool(p.Value)
}
