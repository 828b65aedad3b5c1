package usecase

import (
	"context"
	"io"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
)

type ConvertPDFsToMarkdownUseCase struct {
	input     ports.ObjectStorage
	output    ports.ObjectStorage
	converter ports.MarkdownConverter
	opts      BatchOptions
}

func NewConvertPDFsToMarkdownUseCase(
	input ports.ObjectStorage,
	output ports.ObjectStorage,
	converter ports.MarkdownConverter,
	opts BatchOptions,
) *ConvertPDFsToMarkdownUseCase {
	return &ConvertPDFsToMarkdownUseCase{
		input:     input,
		output:    output,
		converter: converter,
		opts:      opts.normalize(),
	}
}

func (uc *ConvertPDFsToMarkdownUseCase) Run(ctx context.Context) (domain.BatchReport, error) {
	return fileConversion{
		driver:    DriverPDFToMarkdown,
		operation: "convert pdf to markdown",
		pattern:   "*.pdf",
		outputExt: ".md",
		emptyErr:  "No PDFs found",
		input:     uc.input,
		output:    uc.output,
		convert: func(ctx context.Context, _ string, src io.Reader) (string, error) {
			return uc.converter.ConvertPDF(ctx, src)
		},
		opts: uc.opts,
	}.run(ctx)
}
