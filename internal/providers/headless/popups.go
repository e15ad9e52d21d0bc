package headless

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
)

// MaxDismissPasses bounds the popup ladder; after that the page is used
// as-is.
const MaxDismissPasses = 3

// StrategyKind selects how a dismissal strategy locates its target.
type StrategyKind int

const (
	// ClickLabel clicks the first visible button whose text matches a label.
	ClickLabel StrategyKind = iota
	// ClickSelector clicks the first element matching a CSS selector.
	ClickSelector
	// PressEscape sends the escape key to the page.
	PressEscape
)

// Strategy is a pure locator descriptor. It holds no browser state, so the
// ladder is testable without a browser.
type Strategy struct {
	Kind      StrategyKind
	Labels    []string
	Selectors []string
}

// StrategiesFor returns the dismissal ladder for a platform, ordered from
// gentlest to bluntest.
func StrategiesFor(platform string) []Strategy {
	switch platform {
	case types.PlatformFacebook:
		return []Strategy{
			{Kind: ClickSelector, Selectors: []string{
				`[data-testid="cookie-policy-manage-dialog-accept-button"]`,
			}},
			{Kind: ClickLabel, Labels: []string{
				"Accept All", "Allow all cookies", "Aceitar todos",
			}},
			{Kind: ClickSelector, Selectors: []string{
				`[aria-label="Close"]`, `[aria-label="Fechar"]`,
			}},
			{Kind: PressEscape},
		}
	default:
		return []Strategy{
			{Kind: ClickLabel, Labels: []string{
				"Not Now", "Not now", "Agora não", "Não agora", "Accept", "Allow",
			}},
			{Kind: ClickSelector, Selectors: []string{
				`button[aria-label="Close"]`, `button[aria-label="Fechar"]`,
				`svg[aria-label="Close"]`, `svg[aria-label="Fechar"]`,
				`[aria-label="Close"]`, `[aria-label="Fechar"]`,
			}},
			{Kind: PressEscape},
		}
	}
}

// ModalIndicators are the selectors that mean a popup is still blocking the
// page.
func ModalIndicators() []string {
	return []string{
		`div[role="dialog"]`,
		`div[role="presentation"]`,
		`[data-testid="loginForm"]`,
	}
}

// DOM is the slice of browser behavior the dismisser needs. The chromedp
// driver implements it for real pages; tests implement it in memory.
type DOM interface {
	ClickFirstLabel(ctx context.Context, labels []string) (bool, error)
	ClickFirstSelector(ctx context.Context, selectors []string) (bool, error)
	PressEscape(ctx context.Context) error
	HasAny(ctx context.Context, selectors []string) (bool, error)
}

// DismissPopups walks the strategy ladder until no modal indicator remains
// or the pass budget runs out. It returns the number of passes executed;
// capture proceeds regardless of the outcome.
func DismissPopups(ctx context.Context, dom DOM, platform string) int {
	strategies := StrategiesFor(platform)

	passes := 0
	for ; passes < MaxDismissPasses; passes++ {
		blocked, err := dom.HasAny(ctx, ModalIndicators())
		if err != nil {
			logrus.Debugf("Modal check failed: %v", err)
			return passes
		}
		if !blocked {
			return passes
		}

		for _, strategy := range strategies {
			acted, err := applyStrategy(ctx, dom, strategy)
			if err != nil {
				logrus.Debugf("Popup strategy failed: %v", err)
				continue
			}
			if acted {
				break
			}
		}
	}
	return passes
}

func applyStrategy(ctx context.Context, dom DOM, strategy Strategy) (bool, error) {
	switch strategy.Kind {
	case ClickLabel:
		return dom.ClickFirstLabel(ctx, strategy.Labels)
	case ClickSelector:
		return dom.ClickFirstSelector(ctx, strategy.Selectors)
	case PressEscape:
		if err := dom.PressEscape(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}
