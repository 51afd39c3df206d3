package model

import "fmt"

type ChannelID int

// Channel is the immutable identity of a video/timing channel.
type Channel struct {
	ID        ChannelID `json:"id"`
	Frequency int       `json:"frequency"` // MHz
	Band      string    `json:"band"`
	Number    int       `json:"number"`
	Color     string    `json:"color"` // display color, e.g. "#ff0000"
}

func (c Channel) String() string {
	return fmt.Sprintf("%s%d (%d MHz)", c.Band, c.Number, c.Frequency)
}

type PilotID string

type Pilot struct {
	ID   PilotID `json:"id"`
	Name string  `json:"name"`
}

// PilotChannel binds a pilot to a channel for one race
type PilotChannel struct {
	Pilot   PilotID   `json:"pilot"`
	Channel ChannelID `json:"channel"`
}
