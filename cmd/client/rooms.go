package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"geochat/internal/domain"
)

type roomListing struct {
	domain.Room
	ActiveConnections int `json:"active_connections"`
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms on the server",
	RunE:  runRooms,
}

func runRooms(cmd *cobra.Command, args []string) error {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Get(serverURL + "/api/rooms")
	if err != nil {
		return fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server replied %s", resp.Status)
	}

	var body struct {
		Rooms []roomListing `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode rooms: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Type", "Location", "Online"})
	for _, r := range body.Rooms {
		t.AppendRow(table.Row{
			r.ID, r.Name, r.Type,
			fmt.Sprintf("%.4f, %.4f", r.Latitude, r.Longitude),
			r.ActiveConnections,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

var (
	createType string
	createLat  float64
	createLng  float64
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createType, "type", "t", string(domain.RoomTypeMixed), "room type: text, video or text-and-video")
	createCmd.Flags().Float64Var(&createLat, "lat", 0, "latitude the room is anchored to")
	createCmd.Flags().Float64Var(&createLng, "lng", 0, "longitude the room is anchored to")
}

func runCreate(cmd *cobra.Command, args []string) error {
	payload, err := json.Marshal(map[string]any{
		"name":      args[0],
		"type":      createType,
		"latitude":  createLat,
		"longitude": createLng,
	})
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Post(serverURL+"/api/rooms", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("server replied %s: %s", resp.Status, errBody.Error)
	}

	var room domain.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return fmt.Errorf("decode room: %w", err)
	}
	fmt.Printf("room created: %s (%s)\n", room.ID, room.Name)
	return nil
}
