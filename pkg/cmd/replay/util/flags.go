package util

// this holds the resolved replay values from CLI
var (
	Speed       int      // replay speed (0: as fast as possible)
	FastForward string   // replay this duration with max speed
	Files       []string // recordings to replay ("-" for stdin)
	PrintFrames bool     // print every reordered frame as json
)
