package consts

const (
	DefaultVideoExt       = ".avi"
	DefaultTimestampsFile = "_timestamps.json"
	DefaultMetadataFile   = "_meta.json"

	DefaultFilePerm = 0666
	DefaultDirPerm  = 0777

	StampLayout = "20060102_150405"
)
