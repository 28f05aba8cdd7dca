package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"image.gen/config"
	"image.gen/internal/gate"
	"image.gen/internal/imagegen"
	"image.gen/internal/models"
	"image.gen/internal/openai"
	"image.gen/web"
)

const maxFormBytes = 64 << 10

// Runner is satisfied by *imagegen.Driver.
type Runner interface {
	Run(ctx context.Context, sub models.Submission) (*models.Outcome, error)
}

type Handler struct {
	runner Runner
	gate   *gate.Gate
	config *config.Config
	pages  map[string]*template.Template
	logger *slog.Logger
}

func NewHandler(runner Runner, g *gate.Gate, cfg *config.Config, pages map[string]*template.Template, logger *slog.Logger) *Handler {
	return &Handler{
		runner: runner,
		gate:   g,
		config: cfg,
		pages:  pages,
		logger: logger,
	}
}

type GenerateRequest struct {
	APIKey string `json:"api_key"`
	Prompt string `json:"prompt"`
	N      int    `json:"n,omitempty"`
	Size   string `json:"size,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type pageData struct {
	Title         string
	LinkStyle     string
	GateEnabled   bool
	HasDefaultKey bool
	Prompt        string
	Error         string
	Outcome       *models.Outcome
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, web.PageIndex, h.page())
}

// Generate handles the HTML form. Errors are shown on the form instead of
// failing the request.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		data := h.page()
		data.Error = "Invalid form submission."
		h.render(w, r, http.StatusBadRequest, web.PageIndex, data)
		return
	}

	sub := h.submission(r.Context(), r.PostFormValue("api_key"), r.PostFormValue("prompt"), 0, "")
	data := h.page()
	data.Prompt = sub.Prompt

	out, err := h.runner.Run(r.Context(), sub)
	if err != nil {
		status, msg, _ := h.describeError(err)
		data.Error = msg
		h.render(w, r, status, web.PageIndex, data)
		return
	}

	data.Outcome = out
	h.render(w, r, http.StatusOK, web.PageIndex, data)
}

// CreateGeneration is the JSON twin of Generate.
func (h *Handler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.N < 0 || req.N > h.config.OpenAI.MaxN {
		h.error(w, http.StatusBadRequest, "n is out of range")
		return
	}
	if req.Size != "" && !config.ValidSize(req.Size) {
		h.error(w, http.StatusBadRequest, "size must look like 1024x1024")
		return
	}

	sub := h.submission(r.Context(), req.APIKey, req.Prompt, req.N, req.Size)
	out, err := h.runner.Run(r.Context(), sub)
	if err != nil {
		h.handleRunError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GatePage(w http.ResponseWriter, r *http.Request) {
	if s := sessionFrom(r.Context()); s != nil && s.Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, web.PageGate, h.page())
}

// GateLogin checks the password. The entered value is only held for the
// comparison. The session is created here, on the first attempt.
func (h *Handler) GateLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	s := sessionFrom(r.Context())
	if s == nil {
		var err error
		if s, err = h.gate.Session(r.Context(), ""); err != nil {
			h.logger.ErrorContext(r.Context(), "creating session failed", "error", err)
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		h.setSessionCookie(w, s)
	}

	ok, err := h.gate.Attempt(r.Context(), s.ID, r.PostFormValue("password"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "gate attempt failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		h.logger.InfoContext(r.Context(), "gate rejected password")
		data := h.page()
		data.Error = "Password incorrect"
		h.render(w, r, http.StatusUnauthorized, web.PageGate, data)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s := sessionFrom(r.Context()); s != nil {
		if err := h.gate.End(r.Context(), s.ID); err != nil {
			h.logger.WarnContext(r.Context(), "ending session failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/gate", http.StatusSeeOther)
}

// Session attaches the visitor's stored session, if any, to the request
// context. It never creates one; see GateLogin.
func (h *Handler) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(h.config.Session.CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		s, err := h.gate.Lookup(r.Context(), c.Value)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "session unavailable", "error", err)
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		if s == nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, s *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.config.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireGate stops every request until the session has passed the gate.
// Pages redirect to the gate; the JSON API answers 401.
func (h *Handler) RequireGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := sessionFrom(r.Context()); s != nil && s.Authenticated {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.error(w, http.StatusUnauthorized, "password required")
			return
		}
		http.Redirect(w, r, "/gate", http.StatusSeeOther)
	})
}

func (h *Handler) submission(ctx context.Context, apiKey, prompt string, n int, size string) models.Submission {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		apiKey = h.config.Secrets.OpenAIAPIKey
	}
	if n == 0 {
		n = h.config.OpenAI.DefaultN
	}
	if size == "" {
		size = h.config.OpenAI.DefaultSize
	}
	s := sessionFrom(ctx)
	return models.Submission{
		Credential:    apiKey,
		Prompt:        strings.TrimSpace(prompt),
		N:             n,
		Size:          size,
		Authenticated: s != nil && s.Authenticated,
	}
}

func (h *Handler) page() pageData {
	return pageData{
		Title:         h.config.UI.Title,
		LinkStyle:     h.config.UI.LinkStyle,
		GateEnabled:   h.config.Gate.Enabled,
		HasDefaultKey: h.config.Secrets.OpenAIAPIKey != "",
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := h.pages[page]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.ErrorContext(r.Context(), "executing template", "page", page, "error", err)
	}
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func (h *Handler) handleRunError(w http.ResponseWriter, err error) {
	status, msg, kind := h.describeError(err)
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

// describeError maps a Run error to a status code, a message safe to show
// the user and the error kind.
func (h *Handler) describeError(err error) (int, string, string) {
	var ge *openai.GenerationError
	switch {
	case errors.Is(err, imagegen.ErrEmptyPrompt):
		return http.StatusBadRequest, "Please enter a prompt.", ""
	case errors.Is(err, imagegen.ErrMissingCredential):
		return http.StatusBadRequest, "Please enter an API key.", ""
	case errors.Is(err, imagegen.ErrNotAuthenticated):
		return http.StatusUnauthorized, "Password required.", ""
	case errors.As(err, &ge):
		return statusForKind(ge), ge.UserMessage(), ge.Kind.String()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The request timed out.", ""
	default:
		return http.StatusInternalServerError, "Internal error.", ""
	}
}

func statusForKind(ge *openai.GenerationError) int {
	switch ge.Kind {
	case openai.KindAuth:
		return http.StatusUnauthorized
	case openai.KindNetwork:
		return http.StatusBadGateway
	case openai.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		if ge.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
