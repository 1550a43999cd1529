package panels

import (
	"context"
	"net/url"

	"idverify/internal/wizard/media"
	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
	"idverify/internal/wizard/verification"
)

type cameraAccessPanel struct {
	shim media.Shim
}

func (p *cameraAccessPanel) Render(ctx context.Context) (router.View, error) {
	access := verification.FromContext(ctx).CameraAccess()
	return view(steps.RequestCameraAccess, map[string]any{
		"access": string(access),
	}), nil
}

// Complete records what the browser reported. Anything but a grant keeps the
// learner on this step.
func (p *cameraAccessPanel) Complete(ctx context.Context, form url.Values) (steps.Step, error) {
	access := p.shim.Access(form.Get("cameraAccess"))
	verification.FromContext(ctx).Set(verification.CameraAccess, access)
	if !access.Granted() {
		return steps.RequestCameraAccess, nil
	}
	return steps.PortraitPhotoContext, nil
}

type captureKind struct {
	artifact verification.Kind
	read     func(*verification.Session) (media.Photo, bool)
}

var (
	portraitKind = captureKind{artifact: verification.PortraitPhoto, read: (*verification.Session).PortraitPhoto}
	idKind       = captureKind{artifact: verification.IDPhoto, read: (*verification.Session).IDPhoto}
)

// capturePanel takes one photo. Without a camera grant it sends the learner
// back to the permission step.
type capturePanel struct {
	step steps.Step
	kind captureKind
	next steps.Step
}

func (p *capturePanel) Render(ctx context.Context) (router.View, error) {
	session := verification.FromContext(ctx)
	if !session.CameraAccess().Granted() {
		return redirect(p.step, steps.RequestCameraAccess), nil
	}
	_, taken := p.kind.read(session)
	return view(p.step, map[string]any{"retake": taken}), nil
}

func (p *capturePanel) Complete(ctx context.Context, form url.Values) (steps.Step, error) {
	session := verification.FromContext(ctx)
	if !session.CameraAccess().Granted() {
		return steps.RequestCameraAccess, nil
	}
	photo, err := media.DecodeDataURL(form.Get("image"))
	if err != nil {
		return p.step, err
	}
	session.Set(p.kind.artifact, photo)
	return p.next, nil
}
