package wizard

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/fotofoto/filmreturn/internal/address"
	"github.com/fotofoto/filmreturn/internal/cart"
	"github.com/fotofoto/filmreturn/internal/events"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label"
	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/rs/zerolog/log"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type LabelSource interface {
	CaptureLocalImage(data []byte, mimeType string) (label.CapturedImage, error)
	RequestReplacementLabel(ctx context.Context, cameraID string, email string, addr address.Address) (label.ReplacementLabel, error)
}

type ImagePersister interface {
	Persist(ctx context.Context, cameraID string, img label.CapturedImage) (label.HostedURL, error)
}

type CartCreator interface {
	CreateCart(ctx context.Context, req cart.Request) (string, error)
}

// Deps are the collaborators a Wizard drives. Events may be nil.
type Deps struct {
	Labels LabelSource
	Images ImagePersister
	Carts  CartCreator
	Events events.Notifier
}

// Wizard sequences one customer's checkout. It is safe for concurrent use,
// but at most one side-effecting call (Commit, RequestReplacementLabel) runs
// at a time; other calls made meanwhile fail with OperationInFlight.
type Wizard struct {
	deps Deps

	mutex       sync.Mutex
	flow        Flow
	step        Step
	ctx         Context
	checkoutURL string
	inFlight    bool
}

func New(p EntryParams, deps Deps) *Wizard {
	flow := p.Flow()
	return &Wizard{
		deps: deps,
		flow: flow,
		step: flow.Initial(),
		ctx:  newContext(p),
	}
}

func (w *Wizard) Flow() Flow {
	return w.flow
}

func (w *Wizard) Steps() []Step {
	return w.flow.Steps()
}

func (w *Wizard) Current() Step {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.step
}

// Context returns a copy of the collected data.
func (w *Wizard) Context() Context {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.ctx
}

// CheckoutURL is set once the wizard is completed.
func (w *Wizard) CheckoutURL() string {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.checkoutURL
}

// lockAt takes the mutex and checks that the wizard is idle at step. On error
// the mutex is released.
func (w *Wizard) lockAt(step Step) error {
	w.mutex.Lock()
	if err := w.idleAtLocked(step); err != nil {
		w.mutex.Unlock()
		return err
	}
	return nil
}

func (w *Wizard) idleAtLocked(step Step) error {
	if w.inFlight {
		return failure.New(failure.OperationInFlight, "Please wait for the current request to finish.")
	}
	if w.step == CompletedStep {
		return failure.New(failure.StepNotReady, "This checkout is already complete.")
	}
	if step != NoStep && w.step != step {
		return failure.Newf(failure.StepNotReady, "Not available on the %s step.", w.step)
	}
	return nil
}

func (w *Wizard) SetEmail(email string) error {
	if err := w.lockAt(EmailStep); err != nil {
		return err
	}
	defer w.mutex.Unlock()
	w.ctx.Email = strings.TrimSpace(email)
	return nil
}

func (w *Wizard) SelectFormat(f cart.Format) error {
	if _, ok := f.Product(); !ok {
		return failure.New(failure.InvalidInput, "Please choose a format.")
	}
	if err := w.lockAt(FormatStep); err != nil {
		return err
	}
	defer w.mutex.Unlock()
	w.ctx.Format = f
	return nil
}

// CaptureLabel records a customer photo of their return label.
func (w *Wizard) CaptureLabel(data []byte, mimeType string) error {
	if err := w.lockAt(LabelStep); err != nil {
		return err
	}
	defer w.mutex.Unlock()
	img, err := w.deps.Labels.CaptureLocalImage(data, mimeType)
	if err != nil {
		return err
	}
	w.ctx.Label = img
	return nil
}

// ClearLabel discards the current label so the customer can retake it.
func (w *Wizard) ClearLabel() error {
	if err := w.lockAt(LabelStep); err != nil {
		return err
	}
	defer w.mutex.Unlock()
	w.ctx.Label = nil
	return nil
}

// RequestReplacementLabel buys a new label and makes it the session's label.
func (w *Wizard) RequestReplacementLabel(ctx context.Context, addr address.Address) (label.ReplacementLabel, error) {
	if err := address.Validate(addr); err != nil {
		return label.ReplacementLabel{}, err
	}
	if err := w.lockAt(LabelStep); err != nil {
		return label.ReplacementLabel{}, err
	}
	w.inFlight = true
	cameraID, email := w.ctx.CameraID, w.ctx.Email
	w.mutex.Unlock()

	replacement, err := w.deps.Labels.RequestReplacementLabel(ctx, cameraID, email, addr)

	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.inFlight = false
	if err != nil {
		return label.ReplacementLabel{}, err
	}
	w.ctx.Label = replacement.Label
	return replacement, nil
}

// Advance moves to the next step when the current one is complete and fires
// that step's lifecycle event. Confirm never advances; it only commits.
func (w *Wizard) Advance() (Step, error) {
	if err := w.lockAt(NoStep); err != nil {
		return NoStep, err
	}
	from := w.step
	if err := w.readyLocked(from); err != nil {
		w.mutex.Unlock()
		return from, err
	}
	next := transitions[w.flow][from].next
	if next == NoStep {
		w.mutex.Unlock()
		return from, failure.New(failure.StepNotReady, "Use checkout to finish.")
	}
	w.step = next
	c := w.ctx
	w.mutex.Unlock()

	log.Debug().Str("camera_id", c.CameraID).Str("from", from.String()).Str("to", next.String()).Msg("wizard advanced")
	w.emitStepEvent(from, c)
	return next, nil
}

// Retreat moves back one step. Collected data is kept.
func (w *Wizard) Retreat() (Step, error) {
	if err := w.lockAt(NoStep); err != nil {
		return NoStep, err
	}
	defer w.mutex.Unlock()
	prev := transitions[w.flow][w.step].prev
	if prev == NoStep {
		return w.step, failure.New(failure.StepNotReady, "Already at the first step.")
	}
	w.step = prev
	return prev, nil
}

func (w *Wizard) readyLocked(step Step) error {
	switch step {
	case EmailStep:
		if !emailPattern.MatchString(w.ctx.Email) {
			return failure.New(failure.StepNotReady, "Please enter a valid email address.")
		}
	case FormatStep:
		if w.ctx.Format == cart.NoFormat {
			return failure.New(failure.StepNotReady, "Please choose a format.")
		}
	case LabelStep:
		if w.ctx.Label == nil {
			return failure.New(failure.StepNotReady, "Please add your return label.")
		}
	case ConfirmStep:
		if w.ctx.Format == cart.NoFormat {
			return failure.New(failure.StepNotReady, "Please choose a format.")
		}
		if w.ctx.Label == nil {
			return failure.New(failure.StepNotReady, "Please add your return label.")
		}
	}
	return nil
}

// Commit persists a captured label if needed, creates the cart and returns
// the checkout URL to navigate to. Calls run strictly in that order and a
// failure at any point leaves Commit available for a retry.
func (w *Wizard) Commit(ctx context.Context) (string, error) {
	if err := w.lockAt(ConfirmStep); err != nil {
		return "", err
	}
	if err := w.readyLocked(ConfirmStep); err != nil {
		w.mutex.Unlock()
		return "", err
	}
	w.inFlight = true
	c := w.ctx
	w.mutex.Unlock()
	defer func() {
		w.mutex.Lock()
		w.inFlight = false
		w.mutex.Unlock()
	}()

	logger := log.With().Str("camera_id", c.CameraID).Str("format", c.Format.String()).Logger()

	if img, ok := c.Label.(label.CapturedImage); ok {
		hosted, err := w.deps.Images.Persist(ctx, c.CameraID, img)
		if err != nil {
			logger.Warn().Err(err).Msg("commit stopped at label upload")
			metrics.Outcome("wizard.commit", err)
			return "", err
		}
		c.Label = hosted
		w.mutex.Lock()
		w.ctx.Label = hosted
		w.mutex.Unlock()
	}

	checkoutURL, err := w.deps.Carts.CreateCart(ctx, c.cartRequest())
	if err != nil {
		logger.Warn().Err(err).Msg("commit stopped at cart creation")
		metrics.Outcome("wizard.commit", err)
		return "", err
	}

	w.mutex.Lock()
	w.step = CompletedStep
	w.checkoutURL = checkoutURL
	w.mutex.Unlock()

	metrics.Outcome("wizard.commit", nil)
	logger.Info().Str("checkout_url", checkoutURL).Msg("checkout committed")

	props := map[string]interface{}{
		"cid":          c.CameraID,
		"format":       c.Format.String(),
		"price":        c.price(),
		"checkout_url": checkoutURL,
	}
	if hosted, ok := c.Label.(label.HostedURL); ok && hosted.Source == label.Replacement {
		props["labelUrl"] = hosted.URL
	}
	w.emit(events.CompletedCheckout, c.Email, props)
	return checkoutURL, nil
}

func (w *Wizard) emitStepEvent(from Step, c Context) {
	switch from {
	case EmailStep:
		w.emit(events.StartedDeveloping, c.Email, map[string]interface{}{
			"cid":   c.CameraID,
			"email": c.Email,
		})
	case FormatStep:
		props := map[string]interface{}{
			"cid":    c.CameraID,
			"email":  c.Email,
			"format": c.Format.String(),
			"price":  c.price(),
		}
		if c.DiscountPct > 0 {
			props["discount_pct"] = c.DiscountPct
		}
		w.emit(events.SelectedFormat, c.Email, props)
	case LabelStep:
		w.emit(events.UploadedLabel, c.Email, map[string]interface{}{
			"cid":          c.CameraID,
			"email":        c.Email,
			"has_label":    c.Label != nil,
			"label_source": label.SourceOf(c.Label).String(),
		})
	}
}

func (w *Wizard) emit(name string, email string, props map[string]interface{}) {
	if w.deps.Events == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", name).Msg("event notifier panicked")
		}
	}()
	w.deps.Events.Emit(name, email, props)
}
