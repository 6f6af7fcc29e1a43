package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/entitlement-service/internal/client"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/resolver"
)

type cli struct {
	cfg       *config.Config
	logger    *slog.Logger
	baseURL   string
	token     string
	tokenFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "entitlementctl",
		Short:        "Client for the entitlement service",
		Long:         `Checks premium access, watches it for changes and opens checkout or billing portal sessions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.baseURL, "base-url", "", "service base URL (default $ENTITLEMENT_BASE_URL)")
	root.PersistentFlags().StringVar(&c.token, "token", "", "bearer token (default $ENTITLEMENT_TOKEN)")
	root.PersistentFlags().StringVar(&c.tokenFile, "token-file", "", "file holding the bearer token, re-read on every check")

	root.AddCommand(
		c.checkCmd(),
		c.watchCmd(),
		c.checkoutCmd(),
		c.portalCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadEnv()
	}
	if err != nil {
		return err
	}
	if c.baseURL == "" {
		c.baseURL = cfg.BaseURL
	}
	if c.token == "" {
		c.token = cfg.Token
	}
	c.cfg = cfg
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	return nil
}

func (c *cli) session() session {
	return session{token: c.token, file: c.tokenFile}
}

func (c *cli) requireToken() (string, error) {
	token := c.session().Token()
	if token == "" {
		return "", fmt.Errorf("not signed in: set --token, --token-file or ENTITLEMENT_TOKEN")
	}
	return token, nil
}

func (c *cli) resolver(opts resolver.Options) *resolver.Resolver {
	opts.TTL = c.cfg.CacheTTL
	opts.Timeout = c.cfg.RequestTimeout
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = c.cfg.RefreshInterval
	}
	return resolver.New(c.logger, client.New(c.baseURL, nil), c.session(), resolver.SystemClock{}, opts)
}

// session токен из флага или из файла. Файл перечитывается при каждом обращении,
// так что смена токена в файле подхватывается без перезапуска.
type session struct {
	token string
	file  string
}

func (s session) Token() string {
	if s.file == "" {
		return s.token
	}
	data, err := os.ReadFile(s.file)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func statusLine(s models.Status) string {
	line := fmt.Sprintf("premium=%t subscribed=%t admin=%t role=%s", s.HasPremiumAccess(), s.Subscribed, s.IsAdmin, s.Role)
	if s.SubscriptionEnd != nil {
		line += " ends=" + s.SubscriptionEnd.UTC().Format("2006-01-02T15:04:05Z")
	}
	if s.PriceID != "" {
		line += " price=" + s.PriceID
	}
	return line
}
