package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upcall/upcall-cli/internal/config"
	"github.com/upcall/upcall-cli/internal/validation"
)

// newAuthCmd returns the auth command with subcommands.
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"au"},
		Short:   "Manage profiles and credentials",
		Long:    "Configure API profiles and credentials stored securely in your OS keychain.",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthListCmd())
	cmd.AddCommand(newAuthUseCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		baseURL     string
		apiKey      string
		accessToken string
		profileName string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save API credentials to the keychain",
		Long: strings.TrimSpace(`
Save a profile's base URL and credential to your OS keychain.

Provide either an API key (sent as the "key" query parameter) or an OAuth
access token (sent as a bearer Authorization header). Endpoint templates
are added separately with 'upcall endpoint add'.
`),
		Example: strings.TrimSpace(`
  # API-key profile
  upcall auth login --url https://api.example.com --api-key YOUR_KEY

  # Bearer-token profile under a name
  upcall auth login --url https://api.example.com --access-token TOKEN --profile staging
`),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL == "" {
				return fmt.Errorf("--url is required")
			}
			if apiKey == "" && accessToken == "" {
				return fmt.Errorf("either --api-key or --access-token is required")
			}

			baseURL = strings.TrimSuffix(baseURL, "/")
			if err := validation.ValidateBaseURL(baseURL); err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}

			// Preserve endpoints and defaults on re-login.
			profile, err := config.Load(profileName)
			if err != nil {
				if !errors.Is(err, config.ErrNotConfigured) {
					return fmt.Errorf("failed to load profile: %w", err)
				}
				profile = &config.Profile{}
			}
			profile.BaseURL = baseURL
			profile.APIKey = apiKey
			profile.AccessToken = accessToken

			name := profileName
			if name == "" {
				name = config.DefaultProfile
			}
			if err := config.Save(name, profile); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			if err := config.SetCurrentProfile(name); err != nil {
				return fmt.Errorf("failed to select profile: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved successfully!")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  Base URL: %s\n", baseURL)
			if name != config.DefaultProfile {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  Profile: %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "API base URL (e.g. https://api.example.com)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key credential")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "OAuth access token credential")
	cmd.Flags().StringVar(&profileName, "profile", "", "profile name to save under (default: default)")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active profile",
		Long:  "Display the active profile's configuration. Credentials are masked.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := config.Load(flags.Profile)
			if err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Not configured.")
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Run 'upcall auth login' to save credentials.")
					return nil
				}
				return fmt.Errorf("failed to load profile: %w", err)
			}

			name := flags.Profile
			if name == "" {
				name = config.CurrentProfile()
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Profile: %s\n", name)
			_, _ = fmt.Fprintf(out, "  Base URL: %s\n", profile.BaseURL)
			if profile.APIKey != "" {
				_, _ = fmt.Fprintf(out, "  API Key: %s\n", maskSecret(profile.APIKey))
			}
			if profile.AccessToken != "" {
				_, _ = fmt.Fprintf(out, "  Access Token: %s\n", maskSecret(profile.AccessToken))
			}
			_, _ = fmt.Fprintf(out, "  Endpoints: %d\n", len(profile.Endpoints))
			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	var profileName string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove a profile from the keychain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := profileName
			if name == "" {
				name = config.CurrentProfile()
			}
			if err := config.Delete(name); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Profile %s removed successfully.\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", "", "profile to remove (default: current)")

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := config.List()
			if err != nil {
				return fmt.Errorf("failed to list profiles: %w", err)
			}
			if len(names) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No profiles saved.")
				return nil
			}
			current := config.CurrentProfile()
			for _, name := range names {
				marker := " "
				if name == current {
					marker = "*"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func newAuthUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <profile>",
		Short: "Switch the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			if err := config.SetCurrentProfile(args[0]); err != nil {
				return fmt.Errorf("failed to select profile: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s.\n", args[0])
			return nil
		},
	}
}

// maskSecret masks a credential for display, showing only the first and last
// four characters.
func maskSecret(secret string) string {
	if len(secret) < 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
