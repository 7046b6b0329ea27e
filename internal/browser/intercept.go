package browser

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/network"
)

// Decision is the interceptor verdict for one in-page request.
type Decision string

// Interceptor verdicts.
const (
	DecisionContinue    Decision = "continue"
	DecisionBlockedType Decision = "blocked_type"
	DecisionBlockedURL  Decision = "blocked_url"
)

var mediaTypes = map[network.ResourceType]struct{}{
	network.ResourceTypeImage:      {},
	network.ResourceTypeStylesheet: {},
	network.ResourceTypeFont:       {},
	network.ResourceTypeMedia:      {},
}

// decide applies resource blocking and destination validation to a paused
// request. Redirect hops arrive as their own paused requests and pass through
// here too.
func decide(ctx context.Context, opts PageOptions, resourceType network.ResourceType, rawURL string) Decision {
	if opts.BlockMedia {
		if _, ok := mediaTypes[resourceType]; ok {
			return DecisionBlockedType
		}
	}
	if isInlineURL(rawURL) {
		return DecisionContinue
	}
	if opts.Filter != nil {
		if err := opts.Filter(ctx, rawURL); err != nil {
			return DecisionBlockedURL
		}
	}
	return DecisionContinue
}

// isInlineURL reports schemes that never leave the renderer.
func isInlineURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:")
}
