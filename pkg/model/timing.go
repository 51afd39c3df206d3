package model

import "time"

// Detection is a single pass of a pilot through a timing gate
type Detection struct {
	Pilot             PilotID   `json:"pilot"`
	Channel           ChannelID `json:"channel"`
	Time              time.Time `json:"time"`
	TimingSystemIndex int       `json:"timingSystemIndex"`
	Sector            int       `json:"sector"`
	IsHoleshot        bool      `json:"isHoleshot"`
	IsLapEnd          bool      `json:"isLapEnd"`
	Valid             bool      `json:"valid"`
}

type LapID string

type Lap struct {
	ID        LapID     `json:"id"`
	Pilot     PilotID   `json:"pilot"`
	Race      RaceID    `json:"race"`
	Number    int       `json:"number"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Valid     bool      `json:"valid"`
	Detection Detection `json:"detection"`
}

func (l Lap) Length() time.Duration {
	return l.End.Sub(l.Start)
}
