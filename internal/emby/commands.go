package emby

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Playback commands routed through Sessions/{id}/Playing/{cmd} rather than
// the general command channel.
var playingCommands = map[string]bool{
	"Stop":          true,
	"Pause":         true,
	"Unpause":       true,
	"PlayPause":     true,
	"NextTrack":     true,
	"PreviousTrack": true,
}

// PlayCommand issues a playback-state command (Stop, Pause, Unpause,
// NextTrack, PreviousTrack, ...) to a session.
func (c *Client) PlayCommand(ctx context.Context, sessionID, command string) error {
	_, err := c.Request(ctx, http.MethodPost, "Sessions/"+sessionID+"/Playing/"+command, nil, nil)
	return err
}

// Seek moves playback to the given position, in ticks (100ns units).
func (c *Client) Seek(ctx context.Context, sessionID string, positionTicks int64) error {
	query := url.Values{"SeekPositionTicks": {fmt.Sprint(positionTicks)}}
	_, err := c.Request(ctx, http.MethodPost, "Sessions/"+sessionID+"/Playing/Seek", query, nil)
	return err
}

// GeneralCommand sends a named remote-control command to a session.
// Playback-state commands are routed to the Playing endpoint, everything
// else goes through the general command channel.
func (c *Client) GeneralCommand(ctx context.Context, sessionID, name string) error {
	if playingCommands[name] {
		return c.PlayCommand(ctx, sessionID, name)
	}
	body := map[string]string{"Name": name}
	_, err := c.Request(ctx, http.MethodPost, "Sessions/"+sessionID+"/Command", nil, body)
	return err
}

// SetVolume sets a session's volume, 0-100.
func (c *Client) SetVolume(ctx context.Context, sessionID string, level int) error {
	if level < 0 {
		level = 0
	} else if level > 100 {
		level = 100
	}
	query := url.Values{"Volume": {fmt.Sprint(level)}}
	_, err := c.Request(ctx, http.MethodPost, "Sessions/"+sessionID+"/Command/SetVolume", query, nil)
	return err
}

// SendMessage displays a message on a session's client. timeoutMs of zero
// leaves the dismissal to the client.
func (c *Client) SendMessage(ctx context.Context, sessionID, header, text string, timeoutMs int) error {
	body := map[string]any{"Header": header, "Text": text}
	if timeoutMs > 0 {
		body["TimeoutMs"] = timeoutMs
	}
	_, err := c.Request(ctx, http.MethodPost, "Sessions/"+sessionID+"/Message", nil, body)
	return err
}

// PlayMedia instructs a session to play the given items. playCommand is
// PlayNow, PlayNext or PlayLast.
func (c *Client) PlayMedia(ctx context.Context, sessionID string, itemIDs []string, playCommand string) error {
	if playCommand == "" {
		playCommand = "PlayNow"
	}
	query := url.Values{
		"ItemIds":     {strings.Join(itemIDs, ",")},
		"PlayCommand": {playCommand},
	}
	_, err := c.Request(ctx, http.MethodPost, "Sessions/"+sessionID+"/Playing", query, nil)
	return err
}

// StopSession stops playback and then removes the session server-side.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	if err := c.PlayCommand(ctx, sessionID, "Stop"); err != nil {
		return err
	}
	_, err := c.Request(ctx, http.MethodDelete, "Sessions/"+sessionID, nil, nil)
	return err
}

// Restart asks the server to restart itself.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodPost, "System/Restart", nil, nil)
	return err
}

// Shutdown asks the server to shut down.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodPost, "System/Shutdown", nil, nil)
	return err
}

// ScanLibrary triggers a full library scan.
func (c *Client) ScanLibrary(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodPost, "Library/Refresh", nil, nil)
	return err
}
