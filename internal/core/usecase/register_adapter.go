package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/core/ports"
)

// RegisterAdapterUseCase makes an already-downloaded LoRA adapter servable
// under a model name.
type RegisterAdapterUseCase struct {
	registry ports.AdapterRegistry
	logger   *slog.Logger
}

func NewRegisterAdapterUseCase(registry ports.AdapterRegistry, logger *slog.Logger) *RegisterAdapterUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterAdapterUseCase{registry: registry, logger: logger}
}

func (uc *RegisterAdapterUseCase) Load(ctx context.Context, name, path string) error {
	name = strings.TrimSpace(name)
	path = strings.TrimSpace(path)
	if name == "" {
		return domain.WrapError(domain.ErrInvalidInput, "register adapter", errors.New("adapter name is required"))
	}
	if path == "" {
		return domain.WrapError(domain.ErrInvalidInput, "register adapter", errors.New("adapter path is required"))
	}

	if err := uc.registry.LoadAdapter(ctx, name, path); err != nil {
		return fmt.Errorf("register adapter %s: %w", name, err)
	}
	uc.logger.Info("adapter_registered", "lora_name", name, "lora_path", path)
	return nil
}
