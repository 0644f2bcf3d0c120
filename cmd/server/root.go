package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "avatar-gateway",
	Short: "Talking-head front end for the course advisor assistant",
	Long: `avatar-gateway serves the display surface of the course advisor. It relays
user input to the conversation backend and plays each spoken reply in order,
animating the avatar's mouth from the audio and revealing the reply word by word.`,
	SilenceUsage: true,
}
