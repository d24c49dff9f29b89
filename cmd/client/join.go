package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"geochat/internal/client"
	"geochat/internal/domain"
	"geochat/internal/protocol"
)

var (
	joinUsername string
	joinUserID   string
	joinVideo    bool
)

var (
	styleSystem = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	styleJoin   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleLeave  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleName   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and chat from the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringVarP(&joinUsername, "name", "n", "", "display name (required)")
	joinCmd.Flags().StringVarP(&joinUserID, "user", "u", "", "user id (generated when empty)")
	joinCmd.Flags().BoolVar(&joinVideo, "video", false, "take part in the room's mesh call")
	_ = joinCmd.MarkFlagRequired("name")
}

func runJoin(cmd *cobra.Command, args []string) error {
	wsURL, err := wsEndpoint(serverURL)
	if err != nil {
		return err
	}
	userID := joinUserID
	if userID == "" {
		userID = uuid.NewString()
	}

	mgr := client.NewManager(client.Config{
		URL:      wsURL,
		RoomID:   args[0],
		UserID:   userID,
		Username: joinUsername,
	})

	var mesh *client.Mesh
	var bridge func(*protocol.ServerEnvelope)
	if joinVideo {
		mesh = client.NewMesh(func(to string, signal json.RawMessage) bool {
			return mgr.Send(protocol.NewSignalRequest(to, signal))
		})
		if err := mesh.StartLocalMedia(client.NullCapture); err != nil {
			if errors.Is(err, client.ErrMediaUnavailable) {
				fmt.Println(styleSystem.Render("media unavailable, continuing text-only"))
				mesh = nil
			} else {
				return err
			}
		} else {
			bridge = client.MeshEventBridge(mesh)
		}
	}

	done := make(chan error, 1)
	mgr.OnConnected = func() {
		fmt.Println(styleSystem.Render("joined room " + args[0]))
	}
	mgr.OnFailure = func(err error) {
		done <- err
	}
	mgr.OnEvent = func(env *protocol.ServerEnvelope) {
		printEvent(env, userID)
		if bridge != nil {
			bridge(env)
		}
	}

	if err := mgr.Connect(); err != nil {
		fmt.Println(styleSystem.Render("connection lost, retrying..."))
	}
	defer func() {
		if mesh != nil {
			mesh.Close()
		}
		mgr.Disconnect(true)
	}()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
			case line == "/quit":
				done <- nil
				return
			case line == "/camera" && mesh != nil:
				fmt.Println(styleSystem.Render(fmt.Sprintf("camera on: %v", mesh.Media().ToggleCamera())))
			case line == "/mic" && mesh != nil:
				fmt.Println(styleSystem.Render(fmt.Sprintf("mic on: %v", mesh.Media().ToggleMic())))
			default:
				if !mgr.Send(protocol.NewChatRequest(line)) {
					fmt.Println(styleError.Render("not connected, message dropped"))
				}
			}
		}
		done <- nil
	}()

	return <-done
}

func printEvent(env *protocol.ServerEnvelope, selfID string) {
	switch env.Type {
	case protocol.KindJoined:
		if len(env.ExistingUsers) > 0 {
			names := make([]string, 0, len(env.ExistingUsers))
			for _, u := range env.ExistingUsers {
				names = append(names, u.Username)
			}
			fmt.Println(styleSystem.Render("already here: " + strings.Join(names, ", ")))
		}
	case protocol.KindUserJoined:
		fmt.Println(styleJoin.Render(fmt.Sprintf("-> %s joined", env.Username)))
	case protocol.KindUserLeft:
		fmt.Println(styleLeave.Render(fmt.Sprintf("<- %s left", env.Username)))
	case protocol.KindUserTyping:
		if env.IsTyping {
			fmt.Println(styleSystem.Render(env.Username + " is typing..."))
		}
	case protocol.KindNewMessage:
		var m domain.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return
		}
		name := m.Username
		if string(m.UserID) == selfID {
			name = "you"
		}
		fmt.Printf("%s %s\n", styleName.Render(name+":"), m.Content)
	case protocol.KindError:
		fmt.Println(styleError.Render("error: " + env.Message))
	}
}
