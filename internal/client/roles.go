package client

import (
	"context"
	"fmt"
	"sort"

	"housing_sync/internal/domain"
)

// Dashboard is what a signed-in user lands on. Stats keys depend on the role.
type Dashboard struct {
	Role       domain.Role       `json:"role"`
	User       domain.User       `json:"user"`
	Tabs       []string          `json:"tabs"`
	Stats      map[string]int    `json:"stats"`
	Properties []domain.Property `json:"properties,omitempty"`
	Offline    bool              `json:"offline"`
}

// DashboardController builds the dashboard for one role.
type DashboardController interface {
	Build(ctx context.Context, u domain.User) (Dashboard, error)
}

// DashboardFor picks the controller for role. Unknown roles are an error,
// never a silent fallback to the tenant view.
func DashboardFor(role domain.Role, a *Agent) (DashboardController, error) {
	switch role {
	case domain.RoleTenant:
		return tenantDashboard{a}, nil
	case domain.RoleLandlord:
		return landlordDashboard{a}, nil
	case domain.RoleAdmin:
		return adminDashboard{a}, nil
	default:
		return nil, fmt.Errorf("no dashboard for role %q", role)
	}
}

// Dashboard builds the signed-in user's dashboard.
func (a *Agent) Dashboard(ctx context.Context) (Dashboard, error) {
	u, ok := a.session.User()
	if !ok {
		return Dashboard{}, domain.ErrUnauthorized
	}
	c, err := DashboardFor(u.Role, a)
	if err != nil {
		return Dashboard{}, err
	}
	return c.Build(ctx, u)
}

type tenantDashboard struct{ a *Agent }

func (d tenantDashboard) Build(_ context.Context, u domain.User) (Dashboard, error) {
	unread := 0
	for _, t := range d.a.store.Threads("") {
		unread += t.UnreadCount
	}
	saved := d.a.store.ListSaved(u.ID)
	return Dashboard{
		Role:       domain.RoleTenant,
		User:       u,
		Tabs:       []string{"home", "search", "messages", "saved", "profile"},
		Properties: saved,
		Offline:    !d.a.monitor.Online(),
		Stats: map[string]int{
			"saved":    len(saved),
			"recent":   len(d.a.store.RecentSearches()),
			"compared": len(d.a.store.Comparison()),
			"unread":   unread,
		},
	}, nil
}

type landlordDashboard struct{ a *Agent }

func (d landlordDashboard) Build(ctx context.Context, u domain.User) (Dashboard, error) {
	res, err := d.a.Browse(ctx, domain.PropertyFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	var mine []domain.Property
	available := 0
	pending := 0
	for _, p := range res.Properties {
		if p.Landlord.ID != u.ID {
			continue
		}
		mine = append(mine, p)
		if p.Available {
			available++
		}
		for _, up := range d.a.store.PendingPhotosFor(p.ID) {
			if up.Status == domain.PhotoPending {
				pending++
			}
		}
	}
	return Dashboard{
		Role:       domain.RoleLandlord,
		User:       u,
		Tabs:       []string{"dashboard", "properties", "add-property", "messages", "profile"},
		Properties: mine,
		Offline:    res.Offline,
		Stats: map[string]int{
			"listings":       len(mine),
			"available":      available,
			"pendingUploads": pending,
		},
	}, nil
}

type adminDashboard struct{ a *Agent }

func (d adminDashboard) Build(ctx context.Context, u domain.User) (Dashboard, error) {
	res, err := d.a.Browse(ctx, domain.PropertyFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	stats := map[string]int{
		"properties":     len(res.Properties),
		"available":      0,
		"verified":       0,
		"pendingUploads": d.a.Status().PendingUploads,
	}
	landlords := map[string]struct{}{}
	for _, p := range res.Properties {
		if p.Available {
			stats["available"]++
		}
		if p.Landlord.Verified {
			stats["verified"]++
		}
		if p.Landlord.ID != "" {
			landlords[p.Landlord.ID] = struct{}{}
		}
		if p.Location.District != "" {
			stats["district:"+p.Location.District]++
		}
	}
	stats["landlords"] = len(landlords)

	// newest listings first for the review queue
	props := append([]domain.Property(nil), res.Properties...)
	sort.SliceStable(props, func(i, j int) bool { return props[i].CreatedAt.After(props[j].CreatedAt) })
	return Dashboard{
		Role:       domain.RoleAdmin,
		User:       u,
		Tabs:       []string{"overview", "users", "properties", "issues"},
		Properties: props,
		Offline:    res.Offline,
		Stats:      stats,
	}, nil
}
