package panels

import (
	"context"
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
	"idverify/internal/wizard/verification"
	"idverify/internal/wizard/verifiedname"
	dErrors "idverify/pkg/domain-errors"
)

const maxNameLength = 255

// Message keys resolved by the page's catalogue.
const (
	msgNameRequired = "id.verification.step.get-name-id.required"
	msgNameTooLong  = "id.verification.step.get-name-id.too-long"
)

type nameOnIDPanel struct {
	policy *bluemonday.Policy
}

func (p *nameOnIDPanel) Render(ctx context.Context) (router.View, error) {
	names := verifiedname.FromContext(ctx)
	data := map[string]any{"idName": ""}
	if profile, ok := names.ProfileName(); ok {
		data["profileName"] = profile
	}
	if current, ok := verification.FromContext(ctx).IDPhotoName(); ok {
		data["idName"] = current
	} else if profile, ok := names.ProfileName(); ok {
		data["idName"] = profile
	}
	return view(steps.GetNameID, data), nil
}

// Complete stores the name as typed on the ID and marks the verified name
// pending until the summary step submits it.
func (p *nameOnIDPanel) Complete(ctx context.Context, form url.Values) (steps.Step, error) {
	name := p.clean(form.Get("idName"))
	if name == "" {
		return steps.GetNameID, dErrors.New(dErrors.CodeValidation, msgNameRequired)
	}
	if len(name) > maxNameLength {
		return steps.GetNameID, dErrors.New(dErrors.CodeValidation, msgNameTooLong)
	}

	names := verifiedname.FromContext(ctx)
	match := true
	if profile, ok := names.ProfileName(); ok {
		match = sameName(profile, name)
	}

	verification.FromContext(ctx).Merge(map[verification.Kind]any{
		verification.IDPhotoName: name,
		verification.NameMatch:   match,
	})
	names.Merge(map[verifiedname.Field]any{
		verifiedname.VerifiedName: name,
		verifiedname.StatusField:  verifiedname.StatusPending,
	})
	return steps.Summary, nil
}

// clean strips markup and collapses whitespace.
func (p *nameOnIDPanel) clean(raw string) string {
	text := html.UnescapeString(p.policy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}
