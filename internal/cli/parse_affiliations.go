package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cometadata/preprint-affiliations/internal/config"
	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/llm/vllm"
)

type parseAffiliationsOptions struct {
	promptFile   string
	markdownFile string
	inputDir     string
	outputFile   string
	baseURL      string
	model        string
	maxChars     int
	maxTokens    int
	sinks        sinkFlags
}

func newParseAffiliationsCommand(root *rootOptions) *cobra.Command {
	opts := &parseAffiliationsOptions{}
	cmd := &cobra.Command{
		Use:   "parse-affiliations",
		Short: "Parse affiliations from markdown with the fine-tuned model",
		Long: `Send the truncated text of a markdown document to a vLLM chat completion
endpoint and recover the JSON list from the fenced block of the answer.

With --markdown-file the parsed list is printed to stdout and optionally also
written to --output-file. With --input-dir every *.md is parsed in name order,
written as one JSON line per document, and failures are reported at the end.

Examples:
  affiliations parse-affiliations --prompt-file prompt.txt --markdown-file md/2101.00001.md
  affiliations parse-affiliations --prompt-file prompt.txt --input-dir md --output-file parses.jsonl \
    --base-url http://gpu-host:8000 --model affiliation-lora`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runParseAffiliations(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.promptFile, "prompt-file", "", "System prompt template file")
	cmd.Flags().StringVar(&opts.markdownFile, "markdown-file", "", "Single markdown file to parse")
	cmd.Flags().StringVar(&opts.inputDir, "input-dir", "", "Directory of markdown files to parse")
	cmd.Flags().StringVar(&opts.outputFile, "output-file", "", "JSON Lines output file (required with --input-dir)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "vLLM base URL (default from config)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model or adapter name (default from config)")
	cmd.Flags().IntVar(&opts.maxChars, "max-chars", 0, "Character budget of the user message (default from config)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Completion token limit (default from config)")
	opts.sinks.register(cmd)
	_ = cmd.MarkFlagRequired("prompt-file")
	cmd.MarkFlagsMutuallyExclusive("markdown-file", "input-dir")
	cmd.MarkFlagsOneRequired("markdown-file", "input-dir")
	return cmd
}

func runParseAffiliations(cmd *cobra.Command, root *rootOptions, opts *parseAffiliationsOptions) (err error) {
	if opts.inputDir != "" && strings.TrimSpace(opts.outputFile) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "parse affiliations", errors.New("--output-file is required with --input-dir"))
	}

	cfg, err := root.loadConfig(cmd, func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("base-url") {
			cfg.VLLM.URL = opts.baseURL
		}
		if flags.Changed("model") {
			cfg.VLLM.Model = opts.model
		}
		if flags.Changed("max-chars") {
			cfg.Prompt.MaxChars = opts.maxChars
		}
		if flags.Changed("max-tokens") {
			cfg.VLLM.MaxTokens = opts.maxTokens
		}
		opts.sinks.apply(cmd, cfg)
	})
	if err != nil {
		return err
	}
	app := root.newApp(cfg)

	systemPrompt, err := vllm.LoadPromptTemplate(opts.promptFile)
	if err != nil {
		return err
	}

	out, err := app.OpenSinks(cmd.Context(), sinksFor(cfg, opts.outputFile))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	inputDir, name := opts.inputDir, ""
	if opts.markdownFile != "" {
		inputDir, name = filepath.Dir(opts.markdownFile), filepath.Base(opts.markdownFile)
	}
	uc, err := app.ParseAffiliations(inputDir, app.VLLM("", "", 0), 0, out)
	if err != nil {
		return err
	}

	return root.run(cmd.Context(), app, func(ctx context.Context) error {
		if name == "" {
			_, err := uc.ParseDir(ctx, systemPrompt)
			return err
		}
		return parseSingle(ctx, uc, systemPrompt, name, root)
	})
}

func parseSingle(ctx context.Context, uc ports.AffiliationParser, systemPrompt, name string, root *rootOptions) error {
	parse, err := uc.ParseFile(ctx, systemPrompt, name)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(parse.Prediction, "", "  ")
	if err != nil {
		return fmt.Errorf("encode parse: %w", err)
	}
	_, err = fmt.Fprintln(root.stdout, string(raw))
	return err
}
