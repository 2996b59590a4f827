package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gzhole/shopbot/internal/store"
	"github.com/gzhole/shopbot/internal/tools"
)

var affirmative = regexp.MustCompile(`(?i)^\s*(yes|y|yeah|yep|sure|ok|okay|confirm|confirmed|do it|please do|go ahead)\b`)

func isAffirmative(s string) bool {
	return affirmative.MatchString(s)
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^how much (?:is|are|does|do|for)\s+(?:the\s+|a\s+|an\s+)?(.+?)(?:\s+cost)?\s*\??$`),
	regexp.MustCompile(`(?i)^(?:what(?:'s| is)\s+)?(?:the\s+)?price (?:of|for)\s+(?:the\s+|a\s+|an\s+)?(.+?)\s*\??$`),
	regexp.MustCompile(`(?i)^what does\s+(?:the\s+|a\s+|an\s+)?(.+?)\s+cost\s*\??$`),
}

// priceQuery extracts the product term from a direct price question.
func priceQuery(q string) (string, bool) {
	q = strings.TrimSpace(q)
	for _, re := range pricePatterns {
		if m := re.FindStringSubmatch(q); m != nil {
			if term := strings.TrimSpace(m[1]); term != "" {
				return term, true
			}
		}
	}
	return "", false
}

func formatPrice(p float64) string {
	return fmt.Sprintf("%.2f¤", p)
}

func confirmationPrompt(p *tools.PendingConfirmation) string {
	return fmt.Sprintf("I couldn't find an exact match. Did you mean %q (%s)? Reply \"yes\" to confirm.",
		p.Candidate.Name, formatPrice(p.Candidate.Price))
}

func refusal(category string) string {
	if category == "" {
		return "Sorry, I can't do that."
	}
	return fmt.Sprintf("Sorry, I can't do that: it involves %s.", category)
}

func renderPrices(products []store.Product) string {
	if len(products) == 1 {
		p := products[0]
		return fmt.Sprintf("%s costs %s.", p.Name, formatPrice(p.Price))
	}
	var sb strings.Builder
	sb.WriteString("Here are the prices I found:")
	for _, p := range products {
		fmt.Fprintf(&sb, "\n- %s: %s", p.Name, formatPrice(p.Price))
	}
	return sb.String()
}

func renderProducts(products []store.Product) string {
	var sb strings.Builder
	sb.WriteString("Here is what I found:")
	for _, p := range products {
		fmt.Fprintf(&sb, "\n- %s (%s)", p.Name, formatPrice(p.Price))
	}
	return sb.String()
}

func renderBasket(b *store.Basket) string {
	if b.Empty() {
		return msgEmptyBasket
	}
	var sb strings.Builder
	sb.WriteString("Your basket contains:")
	for _, it := range b.Items {
		fmt.Fprintf(&sb, "\n- %d x %s (%s)", it.Quantity, it.Name, formatPrice(it.Price))
	}
	fmt.Fprintf(&sb, "\nTotal: %s", formatPrice(b.Total()))
	return sb.String()
}

// renderResult renders the recognized result shapes: product lists and
// basket snapshots.
func renderResult(spec *tools.Spec, res tools.Result) (string, bool) {
	if res.Failed() {
		return "", false
	}
	switch data := res.Data.(type) {
	case []store.Product:
		if len(data) == 0 {
			return "", false
		}
		return renderProducts(data), true
	case *store.Basket:
		body := renderBasket(data)
		if spec != nil && !data.Empty() {
			switch spec.ID {
			case tools.AddToBasket:
				body = "Added to your basket. " + body
			case tools.RemoveFromBasket:
				body = "Removed from your basket. " + body
			}
		}
		return body, true
	}
	return "", false
}

// toolContent is the tool message the model sees for a result.
func toolContent(res tools.Result) string {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, "result could not be encoded")
	}
	return string(b)
}
