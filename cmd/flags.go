////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

// CLI flag name constants, organized by subcommand with root level flags at
// the top. Pulling flags through Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Backend flags
	serverFlag  = "server"
	channelFlag = "channel"
	tokenFlag   = "token"

	// Session flags
	sessionFlag  = "session"
	passwordFlag = "password"

	// Conversation flags
	chatFlag        = "chat"
	messageFlag     = "message"
	waitTimeoutFlag = "waitTimeout"

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Misc
	profileCpuFlag = "profile-cpu"

	///////////////// Mock server subcommand flags /////////////////////////////
	portFlag      = "port"
	mockUsersFlag = "users"
)
