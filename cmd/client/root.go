package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "geochat",
	Short: "Terminal client for geochat rooms",
	Long:  "Join geographically-anchored rooms, chat and take part in mesh video calls from the terminal.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8001", "geochat server base URL")
	rootCmd.AddCommand(joinCmd, roomsCmd, createCmd)
}

// wsEndpoint converts the HTTP base URL into the websocket endpoint.
func wsEndpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/ws"
	return u.String(), nil
}
