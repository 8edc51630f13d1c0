// Command fido2demo is a harness that exercises the fido2 client and
// authenticator packages end to end over HTTP: it is not part of the core
// and exists only to prove the library out against a real relying-party
// shape, the way a browser and server would drive it in production. Route
// registration follows the same per-route-function style as
// internal/api/handlers/webauthn's PostWebAuthnRegisterBeginRoute, adapted
// from the deleted api.Server scaffolding to a single *echo.Echo instance
// built inline in serve.go.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("fido2demo exited with an error")
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "fido2demo",
		Short: "Demo relying-party server exercising the fido2 client/authenticator",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
				With().Timestamp().Logger()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to fido2demo.toml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(&configPath))
	return root
}
