// Package imagegen runs one form submission: generate the image, name it,
// optionally save it locally, and describe the result for rendering.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"image.gen/internal/models"
	"image.gen/internal/openai"
)

// ErrEmptyPrompt is returned before any remote call is made.
var ErrEmptyPrompt = errors.New("prompt is required")

// ErrMissingCredential is returned when neither the form nor the secrets
// file supplies an API key.
var ErrMissingCredential = errors.New("api key is required")

// ErrNotAuthenticated is returned when the password gate is on and the
// submission's session has not passed it.
var ErrNotAuthenticated = errors.New("session has not passed the password gate")

// Generator is satisfied by *openai.Client.
type Generator interface {
	GenerateImage(ctx context.Context, credential, prompt string, n int, size string) (*openai.GenerationResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Namer is satisfied by *naming.Synthesizer.
type Namer interface {
	Filename(ctx context.Context, credential, prompt string) (string, error)
}

// SaveDecision reports whether the image should be written to disk.
type SaveDecision func() bool

type Driver struct {
	generator  Generator
	namer      Namer
	shouldSave SaveDecision
	writer     *Writer
	logger     *slog.Logger
	gated      bool
}

type Option func(*Driver)

// WithGate makes Run refuse submissions whose Authenticated flag is unset.
func WithGate(enabled bool) Option {
	return func(d *Driver) { d.gated = enabled }
}

func NewDriver(g Generator, n Namer, shouldSave SaveDecision, w *Writer, logger *slog.Logger, opts ...Option) *Driver {
	if shouldSave == nil {
		shouldSave = func() bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{
		generator:  g,
		namer:      n,
		shouldSave: shouldSave,
		writer:     w,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes a submission. A non-nil error means no image was generated.
// Failures while naming or saving a generated image are reported on the
// Outcome so the image is still shown.
func (d *Driver) Run(ctx context.Context, sub models.Submission) (*models.Outcome, error) {
	if d.gated && !sub.Authenticated {
		return nil, ErrNotAuthenticated
	}
	if sub.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if sub.Credential == "" {
		return nil, ErrMissingCredential
	}

	res, err := d.generator.GenerateImage(ctx, sub.Credential, sub.Prompt, sub.N, sub.Size)
	if err != nil {
		d.logger.WarnContext(ctx, "image generation failed", "error", err)
		return nil, err
	}

	out := &models.Outcome{
		Prompt:     sub.Prompt,
		ImageURL:   res.URL,
		ImageURLs:  res.URLs,
		StatusCode: res.StatusCode,
	}
	if res.StatusCode != http.StatusOK {
		return out, nil
	}
	out.Generated = true

	filename, err := d.namer.Filename(ctx, sub.Credential, sub.Prompt)
	if err != nil {
		d.logger.WarnContext(ctx, "filename synthesis failed", "error", err)
		out.SaveError = saveMessage(err)
		return out, nil
	}
	out.Filename = filename

	if !d.shouldSave() {
		return out, nil
	}

	if err := d.save(ctx, res.URL, filename); err != nil {
		d.logger.WarnContext(ctx, "saving image failed", "path", filename, "error", err)
		out.SaveError = saveMessage(err)
		return out, nil
	}
	out.SavedPath = filename
	d.logger.InfoContext(ctx, "image saved", "path", filename)

	return out, nil
}

func (d *Driver) save(ctx context.Context, url, filename string) error {
	// fail before downloading when the target cannot be written
	if err := d.writer.Check(filename); err != nil {
		return err
	}
	data, err := d.generator.Download(ctx, url)
	if err != nil {
		return err
	}
	return d.writer.Write(filename, data)
}

func saveMessage(err error) string {
	var ge *openai.GenerationError
	switch {
	case errors.As(err, &ge):
		return "Image was not saved: " + ge.UserMessage()
	case errors.Is(err, ErrOutputDirMissing):
		return "Image was not saved: output directory missing."
	default:
		return fmt.Sprintf("Image was not saved: %v", err)
	}
}
