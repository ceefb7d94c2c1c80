// Command wbclient 是白板同步服务的命令行客户端，用于调试和压测。
//
//	wbclient watch --room r1 --user alice
//	wbclient draw --room r1 --user alice --points "0,0 10,10 20,5"
//	wbclient chat --room r1 --guest g1 "hello"
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	logrus.SetOutput(os.Stderr)
	if err := buildRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

type sessionFlags struct {
	server   string
	token    string
	room     string
	document string
	user     string
	guest    string
	name     string
	timeout  int
	debug    bool
}

func buildRootCmd() *cobra.Command {
	flags := &sessionFlags{}
	rootCmd := &cobra.Command{
		Use:          "wbclient",
		Short:        "Command line client for the whiteboard sync server",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.server, "server", envOr("WB_SERVER", "ws://localhost:8080/ws"), "websocket endpoint")
	pf.StringVar(&flags.token, "token", os.Getenv("WB_TOKEN"), "JWT used to authenticate the connection")
	pf.StringVar(&flags.room, "room", "", "room id to join")
	pf.StringVar(&flags.document, "document", "", "document id (defaults to the room id)")
	pf.StringVar(&flags.user, "user", "", "registered user id")
	pf.StringVar(&flags.guest, "guest", "", "guest id (used when --user is empty)")
	pf.StringVar(&flags.name, "name", "", "display name")
	pf.IntVar(&flags.timeout, "timeout", 10, "seconds to wait for the join to complete")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("room")

	rootCmd.AddCommand(
		buildWatchCmd(flags),
		buildDrawCmd(flags),
		buildChatCmd(flags),
		buildStateCmd(flags),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
