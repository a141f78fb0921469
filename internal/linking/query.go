package linking

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

// DeliveryStats counts links by status and delivery state.
type DeliveryStats struct {
	Reserved        int `json:"reserved"`
	Sold            int `json:"sold"`
	PendingDelivery int `json:"pending_delivery"`
	OverdueDelivery int `json:"overdue_delivery"`
}

// CarsForClient returns the links whose client phone equals q exactly or
// whose client name contains q, ignoring case. A blank q matches nothing.
func (i *Index) CarsForClient(ctx context.Context, q string) ([]types.ClientCarLink, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	links, err := i.Links(ctx)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(q)
	var out []types.ClientCarLink
	for _, l := range links {
		if l.Client.Phone == q || strings.Contains(fold.String(l.Client.Name), needle) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Search returns the links where q occurs, ignoring case, in the VIN,
// model, brand, client name or client phone. A blank q returns every link.
func (i *Index) Search(ctx context.Context, q string) ([]types.ClientCarLink, error) {
	links, err := i.Links(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return links, nil
	}

	fold := cases.Fold()
	needle := fold.String(q)
	var out []types.ClientCarLink
	for _, l := range links {
		for _, hay := range []string{l.SecondaryKey, l.Car.Model, l.Car.Brand, l.Client.Name, l.Client.Phone} {
			if hay != "" && strings.Contains(fold.String(hay), needle) {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

// DeliveryStats counts reserved and sold links, links with a delivery date,
// and links whose delivery date has passed.
func (i *Index) DeliveryStats(ctx context.Context) (DeliveryStats, error) {
	links, err := i.repo.ClientLinks(ctx)
	if err != nil {
		return DeliveryStats{}, err
	}

	now := i.now()
	var st DeliveryStats
	for _, l := range links {
		switch l.Status {
		case types.StatusReserved:
			st.Reserved++
		case types.StatusSold:
			st.Sold++
		}
		if d := l.Client.DeliveryDate; d != nil {
			st.PendingDelivery++
			if d.Before(now) {
				st.OverdueDelivery++
			}
		}
	}
	return st, nil
}
