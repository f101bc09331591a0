// Package cmd is the yhsm-go command-line client: a thin cobra front end
// over the session/command packages for scripting and manual testing
// against a connector.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"

	"github.com/opnsec/yhsm-go/authkey"
	"github.com/opnsec/yhsm-go/session"
	"github.com/opnsec/yhsm-go/transport"
)

var logLevel slog.LevelVar

var rootCmd = &cobra.Command{
	Use:   "yhsm-go",
	Short: "Client for a YubiHSM connector speaking SCP03",
	Long: `yhsm-go opens an authenticated SCP03 session against a YubiHSM
connector and runs one operation (echo, key generation, signing, or object
listing) per invocation.`,
}

// Execute runs the root command. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{Level: &logLevel})))

	rootCmd.PersistentFlags().String("connector", "127.0.0.1:12345", "connector address (host:port)")
	rootCmd.PersistentFlags().Uint16("auth-key-id", 1, "authentication key object ID")
	rootCmd.PersistentFlags().String("password", "", "authentication key password (derives K-ENC/K-MAC via PBKDF2)")
	rootCmd.PersistentFlags().Bool("debug", false, "print debug logging")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

// openSession reads the bound persistent flags and returns an authenticated
// session, ready for commands until the caller closes it. The
// returned key is this invocation's only copy of the credentials; the
// caller must call its Zero method once the session is closed.
func openSession(ctx context.Context) (*session.Session, *authkey.AuthKey, error) {
	if viper.GetBool("debug") {
		logLevel.Set(slog.LevelDebug)
	}

	password := viper.GetString("password")
	if password == "" {
		return nil, nil, fmt.Errorf("--password is required")
	}
	key := authkey.FromPassword(password)

	tr := transport.NewHTTPTransport(viper.GetString("connector"))
	creds := session.Credentials{AuthKeyID: uint16(viper.GetUint("auth-key-id")), Key: key}

	s, err := session.Open(ctx, tr, creds, slog.Default())
	if err != nil {
		key.Zero()
		return nil, nil, err
	}
	return s, key, nil
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
}
