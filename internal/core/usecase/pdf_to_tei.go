package usecase

import (
	"context"
	"io"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
)

const teiExt = ".tei.xml"

// ConvertPDFsToTEIUseCase sends every PDF of the input directory to Grobid and
// stores the TEI next to the others in the output directory.
type ConvertPDFsToTEIUseCase struct {
	input     ports.ObjectStorage
	output    ports.ObjectStorage
	converter ports.TEIConverter
	opts      BatchOptions
}

func NewConvertPDFsToTEIUseCase(
	input ports.ObjectStorage,
	output ports.ObjectStorage,
	converter ports.TEIConverter,
	opts BatchOptions,
) *ConvertPDFsToTEIUseCase {
	return &ConvertPDFsToTEIUseCase{
		input:     input,
		output:    output,
		converter: converter,
		opts:      opts.normalize(),
	}
}

func (uc *ConvertPDFsToTEIUseCase) Run(ctx context.Context) (domain.BatchReport, error) {
	return fileConversion{
		driver:    DriverPDFToTEI,
		operation: "convert pdf to tei",
		pattern:   "*.pdf",
		outputExt: teiExt,
		emptyErr:  "No PDFs found",
		input:     uc.input,
		output:    uc.output,
		convert: func(ctx context.Context, name string, src io.Reader) (string, error) {
			return uc.converter.ConvertPDF(ctx, name, src)
		},
		opts: uc.opts,
	}.run(ctx)
}
