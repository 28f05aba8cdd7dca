// Package naming derives the on-disk filename of a generated image from a
// short model-written summary of its prompt.
package naming

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	SummaryInstruction = "You are a helpful assistant designed to summarize text to three words ONLY"

	dateLayout = "20060102"
	extension  = ".jpg"
)

var disallowed = regexp.MustCompile(`[^ a-zA-Z]`)

// Summarizer is satisfied by *openai.Client.
type Summarizer interface {
	Complete(ctx context.Context, credential, model, system, user string) (string, error)
}

type Synthesizer struct {
	summarizer Summarizer
	model      string
	dir        string
	now        func() time.Time
}

func NewSynthesizer(s Summarizer, model, dir string, now func() time.Time) *Synthesizer {
	if now == nil {
		now = time.Now
	}
	return &Synthesizer{
		summarizer: s,
		model:      model,
		dir:        dir,
		now:        now,
	}
}

// Filename asks the summarizer for a three-word summary of prompt and returns
// <dir>/<YYYYMMDD>_<summary>.jpg. The word count is not enforced.
func (s *Synthesizer) Filename(ctx context.Context, credential, prompt string) (string, error) {
	summary, err := s.summarizer.Complete(ctx, credential, s.model, SummaryInstruction, prompt)
	if err != nil {
		return "", err
	}
	return Build(s.dir, s.now(), summary), nil
}

// Sanitize keeps ASCII letters and spaces, trims the ends and joins words
// with underscores.
func Sanitize(summary string) string {
	cleaned := strings.TrimSpace(disallowed.ReplaceAllString(summary, ""))
	return strings.ReplaceAll(cleaned, " ", "_")
}

// Build is the pure part of Filename. Identical summaries on the same day
// yield the same path.
func Build(dir string, date time.Time, summary string) string {
	name := fmt.Sprintf("%s_%s%s", date.Format(dateLayout), Sanitize(summary), extension)
	return path.Join(dir, name)
}
