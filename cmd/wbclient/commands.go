package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/dto"
	"collaborative-whiteboard/internal/syncclient"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// connect 建立连接并加入房间
func connect(ctx context.Context, f *sessionFlags) (*syncclient.Client, error) {
	if f.user == "" && f.guest == "" {
		f.guest = "cli-" + uuid.NewString()[:8]
	}
	client, err := syncclient.Dial(ctx, f.server, f.token)
	if err != nil {
		return nil, err
	}
	joinCtx, cancel := context.WithTimeout(ctx, time.Duration(f.timeout)*time.Second)
	defer cancel()
	err = client.Join(joinCtx, dto.JoinRoom{
		RoomID:     f.room,
		DocumentID: f.document,
		UserID:     f.user,
		GuestID:    f.guest,
		Name:       f.name,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}

func buildWatchCmd(f *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Join a room and print every server event as a JSON line",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			client, err := connect(ctx, f)
			if err != nil {
				return err
			}
			defer client.Close()
			fmt.Fprintf(cmd.ErrOrStderr(), "joined %s as %s (%s)\n", client.RoomID(), client.SocketID(), client.Role())

			for {
				select {
				case <-ctx.Done():
					return nil
				case env, ok := <-client.Events():
					if !ok {
						return errors.New("connection closed by server")
					}
					if err := printJSON(cmd, env); err != nil {
						return err
					}
				}
			}
		},
	}
}

// parsePoints 解析 "x,y x,y ..." 格式的点列表
func parsePoints(raw string) ([]domain.Point, error) {
	var points []domain.Point
	for _, pair := range strings.Fields(raw) {
		xs, ys, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q, want x,y", pair)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid x in %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid y in %q: %w", pair, err)
		}
		points = append(points, domain.Point{X: x, Y: y})
	}
	if len(points) == 0 {
		return nil, errors.New("at least one point is required")
	}
	return points, nil
}

func buildDrawCmd(f *sessionFlags) *cobra.Command {
	var (
		rawPoints string
		color     string
		width     float64
		live      bool
	)
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Draw one stroke into the room",
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := parsePoints(rawPoints)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			client, err := connect(ctx, f)
			if err != nil {
				return err
			}
			defer client.Close()

			stroke := domain.Stroke{ID: uuid.NewString(), Points: points, Color: color, Width: width}
			if live {
				for _, p := range points {
					if err := client.DrawPoint(stroke.ID, p, color, width); err != nil {
						return err
					}
				}
			}
			if err := client.DrawStroke(stroke); err != nil {
				return err
			}
			return printJSON(cmd, stroke)
		},
	}
	cmd.Flags().StringVar(&rawPoints, "points", "", `points as "x,y x,y ..."`)
	cmd.Flags().StringVar(&color, "color", "#000000", "stroke color")
	cmd.Flags().Float64Var(&width, "width", 2, "stroke width")
	cmd.Flags().BoolVar(&live, "live", false, "stream draw-point events before committing")
	_ = cmd.MarkFlagRequired("points")
	return cmd
}

func buildChatCmd(f *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a chat message and wait for the server echo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			client, err := connect(ctx, f)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.SendMessage(strings.Join(args, " ")); err != nil {
				return err
			}
			timeout := time.After(time.Duration(f.timeout) * time.Second)
			for {
				select {
				case env, ok := <-client.Events():
					if !ok {
						return errors.New("connection closed by server")
					}
					switch env.Event {
					case dto.EventReceiveMessage:
						return printJSON(cmd, env)
					case dto.EventError:
						return fmt.Errorf("server error: %s", env.Data)
					}
				case <-timeout:
					return errors.New("timed out waiting for message echo")
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		},
	}
}

func buildStateCmd(f *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Join a room and print its canvas state and participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			client, err := connect(ctx, f)
			if err != nil {
				return err
			}
			defer client.Close()
			return printJSON(cmd, map[string]any{
				"roomId":       client.RoomID(),
				"documentId":   client.DocumentID(),
				"role":         client.Role(),
				"participants": client.Participants(),
				"canvas":       client.Canvas(),
				"messages":     client.Messages(),
			})
		},
	}
}
