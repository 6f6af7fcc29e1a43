package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/entitlement-service/internal/client"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/resolver"
)

func (c *cli) checkCmd() *cobra.Command {
	var (
		force  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check premium access of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status := c.resolver(resolver.Options{}).CheckEntitlement(cmd.Context(), force)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusLine(status))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the client cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print premium access whenever it changes",
		Long:  `Re-checks on a fixed interval and on SIGHUP (session change). Runs until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			r := c.resolver(resolver.Options{
				RefreshInterval: interval,
				OnChange: func(s models.Status) {
					fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339), statusLine(s))
				},
			})

			authChanges := make(chan struct{}, 1)
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						select {
						case authChanges <- struct{}{}:
						default:
						}
					}
				}
			}()

			initial := r.CheckEntitlement(ctx, false)
			fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339), statusLine(initial))
			r.Run(ctx, authChanges)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default from config, 5m)")
	return cmd
}

func (c *cli) checkoutCmd() *cobra.Command {
	var returnURL string
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Create a checkout session and print its URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := c.requireToken()
			if err != nil {
				return err
			}
			url, err := client.New(c.baseURL, nil).CreateCheckout(cmd.Context(), token, returnURL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().StringVar(&returnURL, "return-url", "", "where to land after payment (must be on the application host)")
	return cmd
}

func (c *cli) portalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "portal",
		Short: "Create a billing portal session and print its URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := c.requireToken()
			if err != nil {
				return err
			}
			url, err := client.New(c.baseURL, nil).CustomerPortal(cmd.Context(), token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		userUID string
		email   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Long:  `Signs a token with JWT_SECRET_KEY. Intended for local development against a service sharing the same secret.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if userUID == "" {
				userUID = uuid.NewString()
			}
			if ttl <= 0 {
				ttl = c.cfg.TokenTTL
			}
			token, err := jwt.NewJWTMaker(c.cfg.JWTSecretKey, ttl).GenerateToken(userUID, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userUID, "user-uid", "", "user id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	return cmd
}
