package models

import "time"

// CollectionType categorizes a media library as reported by the server.
type CollectionType string

const (
	CollectionTypeMovies      CollectionType = "movies"
	CollectionTypeTVShows     CollectionType = "tvshows"
	CollectionTypeMusic       CollectionType = "music"
	CollectionTypeMusicVideos CollectionType = "musicvideos"
	CollectionTypeHomeVideos  CollectionType = "homevideos"
	CollectionTypeLiveTV      CollectionType = "livetv"
	CollectionTypeUnknown     CollectionType = "unknown"
)

// SystemInfo is the server identity reported by System/Info.
type SystemInfo struct {
	Name    string `json:"ServerName"`
	Version string `json:"Version"`
	ID      string `json:"Id"`

	OperatingSystem    string `json:"OperatingSystem,omitempty"`
	HasUpdateAvailable bool   `json:"HasUpdateAvailable,omitempty"`
}

// PlayState is the playback state of a session's current item.
type PlayState struct {
	IsPaused      bool   `json:"IsPaused"`
	IsMuted       bool   `json:"IsMuted"`
	VolumeLevel   *int   `json:"VolumeLevel,omitempty"`
	PositionTicks int64  `json:"PositionTicks"`
	PlayMethod    string `json:"PlayMethod,omitempty"`
}

// NowPlaying is the item a session is currently playing.
type NowPlaying struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	SeriesName     string `json:"SeriesName,omitempty"`
	SeasonName     string `json:"SeasonName,omitempty"`
	SeasonNumber   *int   `json:"ParentIndexNumber,omitempty"`
	EpisodeNumber  *int   `json:"IndexNumber,omitempty"`
	ProductionYear int    `json:"ProductionYear,omitempty"`
	RunTimeTicks   int64  `json:"RunTimeTicks,omitempty"`
}

// Session is one active client connection to the server. The session id is
// ephemeral per connection; the device id survives reconnects of the same
// physical client.
type Session struct {
	ID                    string      `json:"Id"`
	DeviceID              string      `json:"DeviceId"`
	DeviceName            string      `json:"DeviceName"`
	Client                string      `json:"Client"`
	ApplicationVersion    string      `json:"ApplicationVersion"`
	UserID                string      `json:"UserId,omitempty"`
	UserName              string      `json:"UserName,omitempty"`
	SupportsRemoteControl bool        `json:"SupportsRemoteControl"`
	NowPlaying            *NowPlaying `json:"NowPlayingItem,omitempty"`
	PlayState             *PlayState  `json:"PlayState,omitempty"`
}

// LatestItem is one recently added library item.
type LatestItem struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	SeriesName     string `json:"SeriesName,omitempty"`
	SeasonNumber   *int   `json:"ParentIndexNumber,omitempty"`
	EpisodeNumber  *int   `json:"IndexNumber,omitempty"`
	ProductionYear int    `json:"ProductionYear,omitempty"`
	DateCreated    string `json:"DateCreated,omitempty"`
}

// Channel is one live TV channel with its currently airing program.
type Channel struct {
	Name    string `json:"name"`
	Program string `json:"program"`
}

// Library is one top-level collection. Latest holds the most recently added
// items (newest first) for standard collections; Channels is populated
// instead for live TV collections.
type Library struct {
	ID       string         `json:"Id"`
	Name     string         `json:"Name"`
	Type     CollectionType `json:"Type"`
	Count    int            `json:"Count"`
	Latest   []LatestItem   `json:"LatestItems,omitempty"`
	Channels []Channel      `json:"Channels,omitempty"`
}

// Snapshot is the immutable aggregate produced by one poll cycle. Consumers
// always see a fully formed snapshot or the previous one, never a partial
// update.
type Snapshot struct {
	Sessions  []Session  `json:"sessions"`
	Libraries []Library  `json:"libraries"`
	Server    SystemInfo `json:"server"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// SessionByID returns the session with the given ephemeral id, if present.
func (s *Snapshot) SessionByID(id string) (Session, bool) {
	for _, sess := range s.Sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return Session{}, false
}

// HasSession reports whether the snapshot contains the given session id.
func (s *Snapshot) HasSession(id string) bool {
	_, ok := s.SessionByID(id)
	return ok
}

// HasDevice reports whether any session in the snapshot belongs to the
// given device id.
func (s *Snapshot) HasDevice(deviceID string) bool {
	for _, sess := range s.Sessions {
		if sess.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// ActiveStreamCount counts sessions that are currently playing something.
func (s *Snapshot) ActiveStreamCount() int {
	n := 0
	for _, sess := range s.Sessions {
		if sess.NowPlaying != nil {
			n++
		}
	}
	return n
}
