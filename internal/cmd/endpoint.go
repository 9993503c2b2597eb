package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upcall/upcall-cli/internal/config"
	"github.com/upcall/upcall-cli/internal/outfmt"
)

// newEndpointCmd returns the endpoint command with subcommands.
func newEndpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "endpoint",
		Aliases: []string{"ep"},
		Short:   "Manage the profile's endpoint catalog",
		Long: `Manage the named endpoint templates stored in the active profile. Each
endpoint pairs an RFC 6570 URL template with a method, required and path
parameters, and per-endpoint defaults.`,
	}

	cmd.AddCommand(newEndpointListCmd())
	cmd.AddCommand(newEndpointAddCmd())
	cmd.AddCommand(newEndpointShowCmd())
	cmd.AddCommand(newEndpointRemoveCmd())

	return cmd
}

func newEndpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List endpoints in the active profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := loadProfile()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(profile.Endpoints))
			for name := range profile.Endpoints {
				names = append(names, name)
			}
			sort.Strings(names)

			if outfmt.FromContext(cmd.Context()) != outfmt.Raw {
				type row struct {
					Name        string `json:"name"`
					Method      string `json:"method"`
					URLTemplate string `json:"url_template"`
					Description string `json:"description,omitempty"`
				}
				rows := make([]row, 0, len(names))
				for _, name := range names {
					ep := profile.Endpoints[name]
					rows = append(rows, row{
						Name:        name,
						Method:      methodOrDefault(ep.Method),
						URLTemplate: ep.URLTemplate,
						Description: ep.Description,
					})
				}
				return outfmt.Write(cmd.Context(), cmd.OutOrStdout(), rows)
			}

			for _, name := range names {
				ep := profile.Endpoints[name]
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s %s\n", name, methodOrDefault(ep.Method), ep.URLTemplate)
			}
			return nil
		},
	}
}

func newEndpointAddCmd() *cobra.Command {
	var (
		method       string
		urlTemplate  string
		mediaURL     string
		required     []string
		pathParams   []string
		defaultPairs []string
		description  string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace an endpoint",
		Example: strings.TrimSpace(`
  # A GET endpoint with a path parameter
  upcall endpoint add items.get --url '/items/{id}' --required id --path-param id

  # A create endpoint with a default query parameter
  upcall endpoint add items.create --method POST --url '/items' --default notify=true

  # An upload endpoint with a separate media URL template
  upcall endpoint add files.insert --method POST --url '/files' --media-url '/upload/files'
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if urlTemplate == "" {
				return fmt.Errorf("--url is required")
			}
			defaults, err := parseParamPairs(defaultPairs)
			if err != nil {
				return err
			}

			name := flags.Profile
			if name == "" {
				name = config.CurrentProfile()
			}
			profile, err := config.Load(name)
			if err != nil {
				return err
			}
			if profile.Endpoints == nil {
				profile.Endpoints = make(map[string]config.Endpoint)
			}
			profile.Endpoints[args[0]] = config.Endpoint{
				Method:           methodOrDefault(method),
				URLTemplate:      urlTemplate,
				MediaURLTemplate: mediaURL,
				RequiredParams:   required,
				PathParams:       pathParams,
				DefaultParams:    defaults,
				Description:      description,
			}

			if err := config.Save(name, profile); err != nil {
				return fmt.Errorf("failed to save endpoint: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s saved.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&urlTemplate, "url", "", "RFC 6570 URL template, absolute or relative to the base URL")
	cmd.Flags().StringVar(&mediaURL, "media-url", "", "URL template used for media uploads")
	cmd.Flags().StringSliceVar(&required, "required", nil, "required parameter names")
	cmd.Flags().StringSliceVar(&pathParams, "path-param", nil, "path parameter names")
	cmd.Flags().StringArrayVar(&defaultPairs, "default", nil, "default parameter (key=value, repeatable)")
	cmd.Flags().StringVar(&description, "description", "", "endpoint description")

	return cmd
}

func newEndpointShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one endpoint's template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfile()
			if err != nil {
				return err
			}
			ep, ok := profile.Endpoints[args[0]]
			if !ok {
				return fmt.Errorf("endpoint %q not found", args[0])
			}
			return outfmt.Write(cmd.Context(), cmd.OutOrStdout(), ep)
		},
	}
}

func newEndpointRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove an endpoint",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := flags.Profile
			if name == "" {
				name = config.CurrentProfile()
			}
			profile, err := config.Load(name)
			if err != nil {
				return err
			}
			if _, ok := profile.Endpoints[args[0]]; !ok {
				return fmt.Errorf("endpoint %q not found", args[0])
			}
			delete(profile.Endpoints, args[0])

			if err := config.Save(name, profile); err != nil {
				return fmt.Errorf("failed to save profile: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s removed.\n", args[0])
			return nil
		},
	}
}
