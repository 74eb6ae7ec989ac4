////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/pairly/chat-client/api"
	"gitlab.com/pairly/chat-client/channel"
	"gitlab.com/pairly/chat-client/chat"
	"gitlab.com/pairly/chat-client/storage/versioned"
	"gitlab.com/pairly/chat-client/store"
	"gitlab.com/pairly/chat-client/switchboard"
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chat-client",
	Short: "Runs a realtime conversation client against a chat backend",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if viper.GetBool(profileCpuFlag) {
			p := profile.Start(profile.CPUProfile,
				profile.ProfilePath("."))
			defer p.Stop()
		}

		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))

		client, conn := initClient()
		defer func() {
			client.Stop()
			if err := conn.Close(); err != nil {
				jww.WARN.Printf(
					"Failed to close channel: %+v", err)
			}
		}()

		if err := client.RefreshConversations(); err != nil {
			jww.FATAL.Panicf(
				"Failed to fetch conversation list: %+v", err)
		}
		for _, conv := range client.List().Conversations() {
			fmt.Printf("%s  %s  unread=%d\n",
				conv.ID, conv.Partner.Name, conv.UnreadCount)
		}

		chatID := viper.GetString(chatFlag)
		if chatID == "" {
			return
		}

		detail, err := client.OpenConversation(chatID)
		if err != nil {
			jww.FATAL.Panicf("Failed to open %q: %+v", chatID, err)
		}
		defer client.CloseConversation()
		for _, m := range detail.Messages() {
			printMessage(client.SelfID(), m)
		}

		if text := viper.GetString(messageFlag); text != "" {
			if err = client.Send(text); err != nil {
				jww.ERROR.Printf("Send failed: %+v", err)
			}
		}

		waitSecs := viper.GetUint(waitTimeoutFlag)
		jww.INFO.Printf("Listening for %d seconds, "+
			"interrupt to stop early", waitSecs)
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(time.Duration(waitSecs) * time.Second):
		case <-interrupt:
		}
	},
}

// initClient builds the full client stack from the CLI flags: session, REST
// client, push channel, and the chat client on top.
func initClient() (*chat.Client, *channel.Connection) {
	token := viper.GetString(tokenFlag)
	if token == "" {
		jww.FATAL.Panicf("No session token provided, use --%s",
			tokenFlag)
	}

	session, err := api.NewSession(token)
	if err != nil {
		jww.FATAL.Panicf("Invalid session token: %+v", err)
	}
	if session.Expired() {
		jww.WARN.Printf("Session token for %s is expired, "+
			"the backend will likely reject it", session.UserID())
	}
	jww.INFO.Printf("Authenticated as %s", session.UserID())

	fs, err := ekv.NewFilestore(viper.GetString(sessionFlag),
		viper.GetString(passwordFlag))
	if err != nil {
		jww.FATAL.Panicf("Failed to open session storage: %+v", err)
	}
	kv := versioned.NewKV(fs)

	rest := api.NewClient(viper.GetString(serverFlag), session,
		api.GetDefaultParams())

	sw := switchboard.New()
	conn, err := channel.Connect(channel.WebsocketDialer{},
		viper.GetString(channelFlag), session.Token(), sw,
		channel.GetDefaultParams())
	if err != nil {
		jww.FATAL.Panicf("Failed to connect push channel: %+v", err)
	}

	client := chat.NewClient(rest, conn, sw, kv, &printEvents{},
		session.UserID(), chat.GetDefaultParams())

	return client, conn
}

func printMessage(selfID string, m store.Message) {
	who := "them"
	if m.SenderID == selfID {
		who = "you"
		if m.Read {
			who = "you, seen"
		}
	}
	fmt.Printf("[%s] (%s) %s\n",
		m.CreatedAt.Format(time.RFC3339), who, m.Text)
}

// initLog initializes logging thresholds and the log path.
func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(ioutil.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

func init() {
	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	viper.BindPFlag(logLevelFlag,
		rootCmd.PersistentFlags().Lookup(logLevelFlag))

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	viper.BindPFlag(logFlag, rootCmd.PersistentFlags().Lookup(logFlag))

	rootCmd.PersistentFlags().StringP(serverFlag, "", "http://localhost:8480",
		"Base URL of the chat REST backend")
	viper.BindPFlag(serverFlag,
		rootCmd.PersistentFlags().Lookup(serverFlag))

	rootCmd.PersistentFlags().StringP(channelFlag, "",
		"ws://localhost:8480/channel",
		"Websocket URL of the push channel")
	viper.BindPFlag(channelFlag,
		rootCmd.PersistentFlags().Lookup(channelFlag))

	rootCmd.PersistentFlags().StringP(tokenFlag, "t", "",
		"Session token (JWT) identifying this user")
	viper.BindPFlag(tokenFlag, rootCmd.PersistentFlags().Lookup(tokenFlag))

	rootCmd.PersistentFlags().StringP(sessionFlag, "s", "",
		"Sets the initial storage directory for client session data")
	viper.BindPFlag(sessionFlag,
		rootCmd.PersistentFlags().Lookup(sessionFlag))

	rootCmd.PersistentFlags().StringP(passwordFlag, "p", "",
		"Password to the session file")
	viper.BindPFlag(passwordFlag,
		rootCmd.PersistentFlags().Lookup(passwordFlag))

	rootCmd.Flags().StringP(chatFlag, "c", "",
		"Conversation ID to open after listing")
	viper.BindPFlag(chatFlag, rootCmd.Flags().Lookup(chatFlag))

	rootCmd.Flags().StringP(messageFlag, "m", "",
		"Message to send to the open conversation")
	viper.BindPFlag(messageFlag, rootCmd.Flags().Lookup(messageFlag))

	rootCmd.Flags().UintP(waitTimeoutFlag, "w", 15,
		"Duration to wait for incoming events before exiting")
	viper.BindPFlag(waitTimeoutFlag,
		rootCmd.Flags().Lookup(waitTimeoutFlag))

	rootCmd.PersistentFlags().Bool(profileCpuFlag, false,
		"Enable cpu profiling to the working directory")
	viper.BindPFlag(profileCpuFlag,
		rootCmd.PersistentFlags().Lookup(profileCpuFlag))
}
