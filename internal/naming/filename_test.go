package naming

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"
)

type fakeSummarizer struct {
	reply string
	err   error

	gotModel, gotSystem, gotUser, gotCredential string
}

func (f *fakeSummarizer) Complete(_ context.Context, credential, model, system, user string) (string, error) {
	f.gotCredential, f.gotModel, f.gotSystem, f.gotUser = credential, model, system, user
	return f.reply, f.err
}

var fixedDay = time.Date(2024, time.March, 9, 15, 4, 5, 0, time.UTC)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cat, Dog! 2024", "Cat_Dog"},
		{"Sunset Over Mountains", "Sunset_Over_Mountains"},
		{"  Neon-lit   City.\n", "Neonlit___City"},
		{"Ünïcode Café Paris", "ncode_Caf_Paris"},
		{"1234 !!!", ""},
		{"Single", "Single"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildOnlyAllowedCharacters(t *testing.T) {
	valid := regexp.MustCompile(`^img/20240309_[A-Za-z_]*\.jpg$`)
	inputs := []string{"Cat, Dog! 2024", "a/b\\c..d", "<script>alert(1)</script>", "tab\tand\nnewline", "$$$ 42 %%%"}
	for _, in := range inputs {
		got := Build("img", fixedDay, in)
		if !valid.MatchString(got) {
			t.Errorf("Build(%q) = %q contains disallowed characters", in, got)
		}
	}
}

func TestBuildExample(t *testing.T) {
	if got := Build("img", fixedDay, "Cat, Dog! 2024"); got != "img/20240309_Cat_Dog.jpg" {
		t.Fatalf("got %q", got)
	}
}

func TestFilename(t *testing.T) {
	f := &fakeSummarizer{reply: "Robot Painting Sunflowers."}
	s := NewSynthesizer(f, "gpt-3.5-turbo", "img", func() time.Time { return fixedDay })

	got, err := s.Filename(context.Background(), "sk-test", "a robot painting sunflowers in oil")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "img/20240309_Robot_Painting_Sunflowers.jpg" {
		t.Fatalf("got %q", got)
	}
	if f.gotSystem != SummaryInstruction || f.gotUser != "a robot painting sunflowers in oil" {
		t.Fatalf("unexpected messages: system=%q user=%q", f.gotSystem, f.gotUser)
	}
	if f.gotModel != "gpt-3.5-turbo" || f.gotCredential != "sk-test" {
		t.Fatalf("unexpected model/credential: %q %q", f.gotModel, f.gotCredential)
	}
}

func TestFilenameSameDaySamePath(t *testing.T) {
	f := &fakeSummarizer{reply: "Blue Whale Dive"}
	s := NewSynthesizer(f, "m", "img", func() time.Time { return fixedDay })

	first, err := s.Filename(context.Background(), "k", "a blue whale diving")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Filename(context.Background(), "k", "a blue whale diving")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("expected identical paths, got %q and %q", first, second)
	}
}

func TestFilenameError(t *testing.T) {
	want := errors.New("rate limited")
	s := NewSynthesizer(&fakeSummarizer{err: want}, "m", "img", nil)
	if _, err := s.Filename(context.Background(), "k", "p"); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
