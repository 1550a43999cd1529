package panels

import (
	"context"
	"net/url"

	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
)

// infoPanel shows static guidance and always moves on to next.
type infoPanel struct {
	step steps.Step
	next steps.Step
}

func info(step, next steps.Step) *infoPanel {
	return &infoPanel{step: step, next: next}
}

func (p *infoPanel) Render(context.Context) (router.View, error) {
	return view(p.step, nil), nil
}

func (p *infoPanel) Complete(context.Context, url.Values) (steps.Step, error) {
	return p.next, nil
}
