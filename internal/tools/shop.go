package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/gzhole/shopbot/internal/fuzzy"
	"github.com/gzhole/shopbot/internal/store"
)

const (
	defaultDiscount = 10
	maxDiscount     = 40
	couponValidity  = 30 * 24 * time.Hour
	couponCodeLen   = 10

	// searchFallbackScore is the minimum fuzzy score for a product to be
	// returned when the catalog search itself finds nothing.
	searchFallbackScore = 0.5
)

func (d *Dispatcher) searchProducts(ctx context.Context, query string) Result {
	products, err := d.backend.Catalog.SearchProducts(ctx, query)
	if err != nil {
		return d.upstream("search products", err)
	}
	if len(products) == 0 {
		all, err := d.backend.Catalog.ListProducts(ctx)
		if err != nil {
			return d.upstream("list products", err)
		}
		for _, p := range all {
			if fuzzy.Score(query, p.Name) >= searchFallbackScore {
				products = append(products, p)
			}
		}
	}
	if len(products) == 0 {
		return failure(KindNotFound, fmt.Sprintf("no products match %q", query))
	}
	return Result{Data: products}
}

func (d *Dispatcher) userProfile(ctx context.Context, caller Identity) Result {
	u, err := d.backend.Users.GetUser(ctx, caller.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return failure(KindNotFound, "user not found")
	}
	if err != nil {
		return d.upstream("get user", err)
	}
	return Result{Data: u}
}

func (d *Dispatcher) basket(ctx context.Context, caller Identity) Result {
	b, err := d.backend.Baskets.GetBasket(ctx, caller.UserID)
	if err != nil {
		return d.upstream("get basket", err)
	}
	return Result{Data: b}
}

func (d *Dispatcher) addToBasket(ctx context.Context, caller Identity, name string, quantity int) Result {
	if quantity < 1 {
		return failure(KindValidation, fmt.Sprintf("%v: quantity must be at least 1", ErrInvalidArgument))
	}
	products, err := d.backend.Catalog.ListProducts(ctx)
	if err != nil {
		return d.upstream("list products", err)
	}
	if len(products) == 0 {
		return failure(KindNotFound, "the catalog is empty")
	}

	idx, score := fuzzy.Best(name, productNames(products))
	candidate := products[idx]
	if !fuzzy.Confident(score) {
		return Result{Pending: &PendingConfirmation{
			CandidateAction: Request{
				Name:      AddToBasket.String(),
				Arguments: map[string]any{"product_name": candidate.Name, "quantity": quantity},
			},
			MatchScore: score,
			Candidate:  candidate,
		}}
	}

	if err := d.backend.Baskets.AddItem(ctx, caller.UserID, candidate.ID, quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failure(KindNotFound, fmt.Sprintf("product %q not found", candidate.Name))
		}
		return d.upstream("add to basket", err)
	}
	b, err := d.backend.Baskets.GetBasket(ctx, caller.UserID)
	if err != nil {
		return d.upstream("get basket", err)
	}
	if !b.Contains(candidate.ID) {
		return failure(KindInternal, fmt.Sprintf("%s was not found in the basket after adding it", candidate.Name))
	}
	return Result{Data: b}
}

func (d *Dispatcher) removeFromBasket(ctx context.Context, caller Identity, name string) Result {
	b, err := d.backend.Baskets.GetBasket(ctx, caller.UserID)
	if err != nil {
		return d.upstream("get basket", err)
	}
	if b.Empty() {
		return failure(KindNotFound, "basket is empty")
	}

	names := make([]string, len(b.Items))
	for i, it := range b.Items {
		names[i] = it.Name
	}
	idx, score := fuzzy.Best(name, names)
	item := b.Items[idx]
	candidate := Product{ID: item.ProductID, Name: item.Name, Price: item.Price}
	if !fuzzy.Confident(score) {
		return Result{Pending: &PendingConfirmation{
			CandidateAction: Request{
				Name:      RemoveFromBasket.String(),
				Arguments: map[string]any{"product_name": item.Name},
			},
			MatchScore: score,
			Candidate:  candidate,
		}}
	}

	if err := d.backend.Baskets.RemoveItem(ctx, caller.UserID, item.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failure(KindNotFound, fmt.Sprintf("%s is not in the basket", item.Name))
		}
		return d.upstream("remove from basket", err)
	}
	b, err = d.backend.Baskets.GetBasket(ctx, caller.UserID)
	if err != nil {
		return d.upstream("get basket", err)
	}
	if b.Contains(item.ProductID) {
		return failure(KindInternal, fmt.Sprintf("%s is still in the basket after removing it", item.Name))
	}
	return Result{Data: b}
}

func (d *Dispatcher) generateCoupon(ctx context.Context, caller Identity, discount int) Result {
	if discount < 1 || discount > maxDiscount {
		return failure(KindValidation,
			fmt.Sprintf("%v: discount must be between 1 and %d", ErrInvalidArgument, maxDiscount))
	}
	c := store.Coupon{
		Code:      fmt.Sprintf("%s-%d", strings.ToUpper(shortuuid.New()[:couponCodeLen]), discount),
		UserID:    caller.UserID,
		Discount:  discount,
		ExpiresAt: d.now().Add(couponValidity).UTC(),
	}
	if err := d.backend.Coupons.SaveCoupon(ctx, c); err != nil {
		return d.upstream("save coupon", err)
	}
	return Result{Data: c}
}

func (d *Dispatcher) upstream(op string, err error) Result {
	d.log.Error("tool backend failed", "op", op, "error", err)
	return failure(KindUpstream, op+" failed")
}

func productNames(products []Product) []string {
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	return names
}
