package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/huddlehq/huddle/internal/domain"
)

// ErrTransportUnavailable wraps any failure to reach the coordinating
// process, for the setup requests and the signaling channel alike.
var ErrTransportUnavailable = errors.New("signaling server unreachable")

// ErrRoomNotFound mirrors the server-side lookup failure for a bad join
// code or room id.
var ErrRoomNotFound = domain.ErrRoomNotFound

type createRoomResponse struct {
	RoomID   string `json:"roomId"`
	JoinCode string `json:"joinCode"`
}

type validateRoomRequest struct {
	JoinCode string `json:"joinCode"`
}

type validateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// CreateRoom asks the server for a fresh room and returns its id and
// shareable join code.
func CreateRoom(ctx context.Context, serverURL string) (roomID, joinCode string, err error) {
	var out createRoomResponse
	if err := postJSON(ctx, serverURL+"/api/create-room", nil, &out); err != nil {
		return "", "", err
	}
	return out.RoomID, out.JoinCode, nil
}

// ValidateRoom resolves a join code to a room id.
func ValidateRoom(ctx context.Context, serverURL, joinCode string) (string, error) {
	var out validateRoomResponse
	err := postJSON(ctx, serverURL+"/api/validate-room", validateRoomRequest{JoinCode: joinCode}, &out)
	if err != nil {
		return "", err
	}
	return out.RoomID, nil
}

func postJSON(ctx context.Context, url string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return ErrRoomNotFound
	default:
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
}
