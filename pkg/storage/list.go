package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"ephys-cam/pkg/storage/consts"
	"ephys-cam/pkg/types"
)

// List walks the given output directories and returns every recording file,
// newest first. Missing directories are skipped.
func List(dirs ...string) ([]types.File, error) {
	var res []types.File
	seen := make(map[string]bool)
	for _, dir := range dirs {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && p == dir {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || !isRecordingFile(d.Name()) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			res = append(res, types.File{
				Name:    filepath.ToSlash(rel),
				Dir:     dir,
				Size:    humanize.Bytes(uint64(info.Size())),
				Bytes:   info.Size(),
				ModTime: info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ModTime.After(res[j].ModTime) })

	return res, nil
}

func isRecordingFile(name string) bool {
	return strings.HasSuffix(name, consts.DefaultVideoExt) ||
		strings.HasSuffix(name, consts.DefaultTimestampsFile) ||
		strings.HasSuffix(name, consts.DefaultMetadataFile)
}
