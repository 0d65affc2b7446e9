package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/huddlehq/huddle/internal/audio"
	"github.com/huddlehq/huddle/internal/client"
	"github.com/huddlehq/huddle/internal/domain"
	sig "github.com/huddlehq/huddle/internal/signal"
)

var (
	joinUsername string
	joinAvatar   string
	joinMuted    bool
	joinPCMPath  string
)

var joinCmd = &cobra.Command{
	Use:   "join <join-code>",
	Short: "Join a room by its join code and stay until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		roomID, err := client.ValidateRoom(ctx, serverURL, args[0])
		if err != nil {
			return err
		}

		c := client.New(serverURL, joinUsername, joinAvatar)
		c.OnRoster = func(participants []domain.Participant) {
			for _, p := range participants {
				log.Info().Str("cid", string(p.ConnectionID)).Str("username", p.Username).Bool("muted", p.Muted).Msg("present")
			}
		}
		c.OnUserJoined = func(cid, username string) {
			log.Info().Str("cid", cid).Str("username", username).Msg("user joined")
		}
		c.OnUserLeft = func(cid string) {
			log.Info().Str("cid", cid).Msg("user left")
		}
		c.OnPresence = func(p sig.PresencePayload) {
			log.Info().Str("cid", p.ConnectionID).Bool("muted", p.Muted).Bool("speaking", p.Speaking).Msg("presence")
		}
		c.OnServerErr = func(msg string) {
			log.Warn().Str("message", msg).Msg("server error")
		}

		if err := c.Join(ctx, roomID); err != nil {
			return err
		}
		defer c.Leave()

		if joinPCMPath != "" {
			acquire := func() (audio.Source, error) {
				return audio.OpenFileSource(joinPCMPath, 960)
			}
			if err := c.StartAudio(ctx, acquire, audio.Config{}); err != nil {
				// Failed acquisition keeps the session usable, just without
				// a speaking signal.
				log.Warn().Err(err).Msg("audio capture unavailable")
			}
		}
		if joinMuted {
			if err := c.SetMuted(true); err != nil {
				log.Warn().Err(err).Msg("set muted")
			}
		}

		select {
		case <-ctx.Done():
		case <-c.Done():
		}
		return nil
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinUsername, "username", "guest", "display name")
	joinCmd.Flags().StringVar(&joinAvatar, "avatar", "", "profile picture URL")
	joinCmd.Flags().BoolVar(&joinMuted, "mute", false, "join muted")
	joinCmd.Flags().StringVar(&joinPCMPath, "pcm", "", "path to a 48kHz mono s16le PCM capture pipe")
	rootCmd.AddCommand(joinCmd)
}
