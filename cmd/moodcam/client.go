package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-moodcam/internal/httpc"
	"github.com/teslashibe/go-moodcam/pkg/protocol"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

const defaultAddr = "http://localhost:8080"

func addrFlag(cmd *cobra.Command) {
	cmd.Flags().String("addr", defaultAddr, "dashboard address")
}

func apiURL(cmd *cobra.Command, path string) string {
	addr, _ := cmd.Flags().GetString("addr")
	return strings.TrimSuffix(addr, "/") + "/api" + path
}

// wsURL maps an http(s) dashboard address to its websocket endpoint.
func wsURL(addr, path string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the detection status of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := httpc.GetBody(cmd.Context(), apiURL(cmd, "/status"))
			if err != nil {
				return err
			}
			var st web.StatusView
			if err := json.Unmarshal(body, &st); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatStatus(st))
			return nil
		},
	}
	addrFlag(cmd)
	return cmd
}

func newCameraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "camera start|stop",
		Short:     "Start or stop the camera of a running server",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := httpc.PostEmpty(cmd.Context(), apiURL(cmd, "/camera/"+args[0]))
			if err != nil {
				var reply struct {
					Error string `json:"error"`
				}
				if json.Unmarshal(body, &reply) == nil && reply.Error != "" {
					return fmt.Errorf("%s: %s", args[0], reply.Error)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
			return nil
		},
	}
	addrFlag(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live status feed of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			target, err := wsURL(addr, "/ws/status")
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
			if err != nil {
				return fmt.Errorf("connect %s: %w", target, err)
			}
			go func() {
				<-ctx.Done()
				conn.Close()
			}()

			out := cmd.OutOrStdout()
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("read: %w", err)
				}
				msg, err := protocol.ParseMessage(raw)
				if err != nil {
					continue
				}
				if line := formatEvent(msg); line != "" {
					fmt.Fprintln(out, line)
				}
			}
		},
	}
	addrFlag(cmd)
	return cmd
}
