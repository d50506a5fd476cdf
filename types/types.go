package types

// VideoReference identifies one playable part of a video. It is built fresh
// for every resolution and never persisted.
type VideoReference struct {
	RawLink       string
	CanonicalLink string
	BVID          string
	CID           string
}

// SigningKeys holds the two WBI key fragments published by the nav endpoint.
type SigningKeys struct {
	ImgKey string
	SubKey string
}

// Playback describes the direct media stream returned by the playurl endpoint.
type Playback struct {
	URL           string
	BackupURLs    []string
	Quality       int
	Format        string
	Size          int64
	LengthMS      int64
	AcceptQuality []int
}
