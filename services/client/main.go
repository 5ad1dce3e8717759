package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/chatsync/internal/logger"
)

// Profile — состояние клиента в ~/.chatsync/client.toml.
type Profile struct {
	Server string `toml:"server"`
	UserID string `toml:"user_id"`
	Email  string `toml:"email"`
}

func profilePath() (string, error) {
	if p := os.Getenv("CHATSYNC_PROFILE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".chatsync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create profile directory: %w", err)
	}
	return filepath.Join(dir, "client.toml"), nil
}

// loadProfile возвращает пустой профиль, если файла ещё нет.
func loadProfile() (*Profile, error) {
	path, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profile{}, nil
		}
		return nil, fmt.Errorf("cannot read profile: %w", err)
	}
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("cannot parse profile: %w", err)
	}
	return &p, nil
}

func saveProfile(p *Profile) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("cannot marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write profile: %w", err)
	}
	return nil
}

// currentUser — --as или user_id из профиля.
func currentUser() (string, error) {
	if flagAs != "" {
		return flagAs, nil
	}
	p, err := loadProfile()
	if err != nil {
		return "", err
	}
	if p.UserID == "" {
		return "", fmt.Errorf("no user: run `login` or pass --as")
	}
	return p.UserID, nil
}

var (
	flagAs          string
	flagBackend     string
	flagRedisURL    string
	flagDatabaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Terminal client for the chatsync engine",
	Long: "Talks to the shared store directly (in-process engine) or streams snapshots from a running API.\n" +
		"Store settings come from the same config as the API (.env, CONFIG_PATH, env) and can be overridden by flags.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetPrefix("client")
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAs, "as", "", "act as this user id (default: user from profile)")
	pf.StringVar(&flagBackend, "backend", "", "store backend: memory|redis|postgres")
	pf.StringVar(&flagRedisURL, "redis-url", "", "redis URL for the redis backend")
	pf.StringVar(&flagDatabaseURL, "database-url", "", "postgres URL for the postgres backend")

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, usersCmd, conversationsCmd,
		messagesCmd, sendCmd, presenceCmd, watchCmd, streamCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Flush(time.Second)
	if err != nil {
		os.Exit(1)
	}
}
