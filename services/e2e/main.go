package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func baseURL() string {
	env := os.Getenv("ENV")
	switch env {
	case "CI":
		return "http://core-app:8080/api/v1"
	}
	return "http://localhost:8080/api/v1"
}

type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}

type CreateResponse struct {
	RoomID string `json:"room_id"`
	Code   string `json:"code"`
}

type Snapshot struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
	Ready   bool   `json:"ready"`
	Players []struct {
		Slot      int    `json:"slot"`
		PlayerID  string `json:"player_id"`
		Connected bool   `json:"connected"`
	} `json:"players"`
}

type Event struct {
	Type    string   `json:"type"`
	Payload Snapshot `json:"payload"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func main() {
	fmt.Println("Starting E2E tests for TowerDuels API...")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	if !waitForService(client) {
		os.Exit(1)
	}

	if err := runDuelFlow(client); err != nil {
		fmt.Printf("Duel flow failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n All E2E tests passed!")
}

func runDuelFlow(client *http.Client) error {
	fmt.Println("\n Step 1: Creating room...")
	var created CreateResponse
	if err := postJSON(client, "/rooms", PlayerRequest{PlayerID: "e2e-owner"}, http.StatusCreated, &created); err != nil {
		return err
	}
	fmt.Printf("Room created. ID: %s, code: %s\n", created.RoomID, created.Code)

	fmt.Println("\n Step 2: Observing room over websocket...")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL("/ws/rooms/"+created.RoomID+"?player_id=e2e-owner"), nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	first, err := readEvent(conn)
	if err != nil {
		return err
	}
	if first.Payload.Status != "waiting" {
		return fmt.Errorf("expected waiting room, got %s", first.Payload.Status)
	}

	fmt.Println("\n Step 3: Joining room...")
	var joined Snapshot
	if err := postJSON(client, "/rooms/"+created.Code+"/participations", PlayerRequest{PlayerID: "e2e-challenger"}, http.StatusOK, &joined); err != nil {
		return err
	}
	if !joined.Ready {
		return fmt.Errorf("room is not ready after join: %+v", joined)
	}

	pushed, err := readEvent(conn)
	if err != nil {
		return err
	}
	if pushed.Payload.Version < joined.Version || pushed.Payload.Status != "playing" {
		return fmt.Errorf("observer missed the join: %+v", pushed.Payload)
	}

	fmt.Println("\n Step 4: Third player is turned away...")
	var rejected ErrorResponse
	if err := postJSON(client, "/rooms/"+created.Code+"/participations", PlayerRequest{PlayerID: "e2e-late"}, http.StatusConflict, &rejected); err != nil {
		return err
	}
	if rejected.Code != "ROOM_FULL" {
		return fmt.Errorf("expected ROOM_FULL, got %s", rejected.Code)
	}

	fmt.Println("\n Step 5: Finishing room...")
	var finished Snapshot
	if err := postJSON(client, "/rooms/id/"+created.RoomID+"/finish", map[string]string{"status": "finished"}, http.StatusOK, &finished); err != nil {
		return err
	}

	resp, err := client.Get(baseURL() + "/rooms/" + created.Code)
	if err != nil {
		return fmt.Errorf("get room request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("finished room is still reachable by code: %d", resp.StatusCode)
	}
	return nil
}

func waitForService(client *http.Client) bool {
	fmt.Println(" Waiting for service to be ready...")

	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		resp, err := client.Get(baseURL() + "/rooms/0")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				fmt.Println(" Service is ready!")
				return true
			}
		}

		if i < maxRetries-1 {
			fmt.Printf(" Service not ready yet (attempt %d/%d)...\n", i+1, maxRetries)
			time.Sleep(2 * time.Second)
		}
	}

	fmt.Println(" Service didn't start in time")
	return false
}

func postJSON(client *http.Client, path string, in any, wantStatus int, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	resp, err := client.Post(baseURL()+path, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("POST %s returned status %d: %s", path, resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func wsURL(path string) string {
	return "ws" + strings.TrimPrefix(baseURL(), "http") + path
}

func readEvent(conn *websocket.Conn) (Event, error) {
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return Event{}, err
	}
	var e Event
	if err := conn.ReadJSON(&e); err != nil {
		return Event{}, fmt.Errorf("websocket read failed: %v", err)
	}
	return e, nil
}
