package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cometadata/preprint-affiliations/internal/config"
)

type loadLoRAOptions struct {
	name    string
	path    string
	baseURL string
}

func newLoadLoRACommand(root *rootOptions) *cobra.Command {
	opts := &loadLoRAOptions{}
	cmd := &cobra.Command{
		Use:   "load-lora",
		Short: "Register a LoRA adapter with a running vLLM server",
		Long: `Register an adapter directory already present on the vLLM host so it can be
requested as a model name. The server must run with --enable-lora and allow
runtime adapter updates.

Example:
  affiliations load-lora --lora-name affiliation-lora --lora-path /models/affiliation-lora`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("base-url") {
					cfg.VLLM.URL = opts.baseURL
				}
			})
			if err != nil {
				return err
			}
			app := root.newApp(cfg)
			uc := app.RegisterAdapter(app.VLLM("", "", 0))

			return root.run(cmd.Context(), app, func(ctx context.Context) error {
				if err := uc.Load(ctx, opts.name, opts.path); err != nil {
					return err
				}
				fmt.Fprintf(root.stdout, "Loaded adapter %s from %s\n", opts.name, opts.path)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.name, "lora-name", "", "Model name to serve the adapter under")
	cmd.Flags().StringVar(&opts.path, "lora-path", "", "Adapter directory on the vLLM host")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "vLLM base URL (default from config)")
	_ = cmd.MarkFlagRequired("lora-name")
	_ = cmd.MarkFlagRequired("lora-path")
	return cmd
}
