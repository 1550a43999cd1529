package httptransport

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"idverify/internal/i18n"
	"idverify/internal/wizard"
	"idverify/internal/wizard/router"
	"idverify/pkg/requestcontext"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"imageURL": imageURL,
	}
	return template.New("_root").Funcs(funcMap).ParseFS(templateFS, "templates/*.tmpl")
}

// imageURL lets captured photos through the URL sanitiser. Anything that is
// not an image data URL is dropped.
func imageURL(v any) template.URL {
	s, _ := v.(string)
	if !strings.HasPrefix(s, "data:image/") {
		return ""
	}
	return template.URL(s)
}

type question struct {
	Question string
	Answer   template.HTML
}

type overlayData struct {
	Open      bool
	Title     string
	Close     string
	Questions []question
}

// pageData is the view model shared by the page, the step region and the
// overlay fragment.
type pageData struct {
	Lang     string
	SiteName string
	Base     string
	MountID  string
	Step     string
	StepPath string
	View     router.View
	StepHTML template.HTML
	Overlay  overlayData

	catalog *i18n.Catalog
}

func (p pageData) T(key string) string {
	return p.catalog.T(p.Lang, key)
}

// Tf formats key with alternating placeholder names and values.
func (p pageData) Tf(key string, kv ...string) string {
	params := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		params[kv[i]] = kv[i+1]
	}
	return p.catalog.Format(p.Lang, key, params)
}

func (h *Handler) newPageData(r *http.Request, m *wizard.Mount, view router.View, matched bool) (pageData, error) {
	ctx := r.Context()
	data := pageData{
		Lang:     requestcontext.Locale(ctx),
		SiteName: h.siteName,
		Base:     h.wizard.Router().Base(),
		MountID:  m.ID().String(),
		catalog:  h.catalog,
	}
	if data.Lang == "" {
		data.Lang = i18n.Fallback.String()
	}
	if matched {
		data.Step = view.Step.String()
		data.StepPath = h.wizard.Router().PathFor(view.Step)
		data.View = view
		var buf bytes.Buffer
		if err := h.views.ExecuteTemplate(&buf, "step-"+view.Step.Slug(), data); err != nil {
			return pageData{}, fmt.Errorf("render step %s: %w", view.Step, err)
		}
		data.StepHTML = template.HTML(buf.String())
	}
	overlay, err := h.overlay(data.Lang, m.Overlay().IsOpen())
	if err != nil {
		return pageData{}, err
	}
	data.Overlay = overlay
	return data, nil
}

func (h *Handler) overlay(lang string, open bool) (overlayData, error) {
	if !open {
		return overlayData{}, nil
	}
	params := map[string]string{"siteName": h.siteName}
	out := overlayData{
		Open:  true,
		Title: h.catalog.T(lang, "id.verification.privacy.title"),
		Close: h.catalog.T(lang, "id.verification.privacy.close"),
	}
	for _, prefix := range []string{"id.verification.privacy.need.photo", "id.verification.privacy.do.with.photo"} {
		answer, err := h.catalog.Markdown(lang, prefix+".answer", params)
		if err != nil {
			return overlayData{}, err
		}
		out.Questions = append(out.Questions, question{
			Question: h.catalog.Format(lang, prefix+".question", params),
			Answer:   answer,
		})
	}
	return out, nil
}

// execute renders one named template into the response.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, name string, data pageData, status int) {
	var buf bytes.Buffer
	if err := h.views.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.ErrorContext(r.Context(), "template execution failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"template", name,
			"error", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
