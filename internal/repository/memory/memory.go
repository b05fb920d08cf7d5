// Package memory is an in-process Store. Transactions take a global lock and
// work on a copy of the state that replaces the live one on commit, so every
// transaction is serializable.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"eventcart/internal/models"
	"eventcart/internal/repository"
)

type state struct {
	events    map[string]*models.Event
	carts     map[string]*models.Cart
	coupons   map[string]*models.Coupon
	clients   map[string]*models.Client
	admins    map[string]*models.Admin
	purchases map[string]*models.Purchase
}

func newState() *state {
	return &state{
		events:    map[string]*models.Event{},
		carts:     map[string]*models.Cart{},
		coupons:   map[string]*models.Coupon{},
		clients:   map[string]*models.Client{},
		admins:    map[string]*models.Admin{},
		purchases: map[string]*models.Purchase{},
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.events {
		cp.events[k] = cloneEvent(v)
	}
	for k, v := range s.carts {
		cp.carts[k] = v.Clone()
	}
	for k, v := range s.coupons {
		c := *v
		cp.coupons[k] = &c
	}
	for k, v := range s.clients {
		cp.clients[k] = cloneClient(v)
	}
	for k, v := range s.admins {
		a := *v
		cp.admins[k] = &a
	}
	for k, v := range s.purchases {
		p := *v
		p.Orders = append([]models.LocalityOrder{}, v.Orders...)
		cp.purchases[k] = &p
	}
	return cp
}

func cloneEvent(e *models.Event) *models.Event {
	cp := *e
	cp.Localities = append([]models.Locality{}, e.Localities...)
	return &cp
}

func cloneClient(c *models.Client) *models.Client {
	cp := *c
	cp.UsedCoupons = append([]string{}, c.UsedCoupons...)
	return &cp
}

// Store implements repository.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos(nil)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, s.repos(work)); err != nil {
		return err
	}
	// отменённый запрос не коммитим
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) repos(tx *state) *repository.Repositories {
	v := &view{store: s, tx: tx}
	return &repository.Repositories{
		Events:    &eventRepo{v},
		Carts:     &cartRepo{v},
		Coupons:   &couponRepo{v},
		Clients:   &clientRepo{v},
		Admins:    &adminRepo{v},
		Purchases: &purchaseRepo{v},
	}
}

// view runs operations either on the transaction copy or, outside a
// transaction, on the live state under the store lock.
type view struct {
	store *Store
	tx    *state
}

func (v *view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

type eventRepo struct{ v *view }

func (r *eventRepo) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var out *models.Event
	err := r.v.do(func(st *state) error {
		if e, ok := st.events[id]; ok {
			out = cloneEvent(e)
		}
		return nil
	})
	return out, err
}

func (r *eventRepo) GetMany(ctx context.Context, ids []string) ([]models.Event, error) {
	out := []models.Event{}
	err := r.v.do(func(st *state) error {
		for _, id := range ids {
			if e, ok := st.events[id]; ok {
				out = append(out, *cloneEvent(e))
			}
		}
		return nil
	})
	return out, err
}

func (r *eventRepo) Search(ctx context.Context, filter models.EventFilter) ([]models.Event, int64, error) {
	var matched []models.Event
	err := r.v.do(func(st *state) error {
		for _, e := range st.events {
			if matches(e, filter) {
				matched = append(matched, *cloneEvent(e))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sortEvents(matched)
	total := int64(len(matched))

	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Size
	if end > len(matched) {
		end = len(matched)
	}
	return append([]models.Event{}, matched[start:end]...), total, nil
}

func matches(e *models.Event, f models.EventFilter) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.City != "" && !strings.Contains(strings.ToLower(e.City), strings.ToLower(f.City)) {
		return false
	}
	if f.From != nil && e.EventDate.Before(*f.From) {
		return false
	}
	if f.To != nil && e.EventDate.After(*f.To) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

func sortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].EventDate.Equal(events[j].EventDate) {
			return events[i].EventDate.Before(events[j].EventDate)
		}
		return events[i].Name < events[j].Name
	})
}

func (r *eventRepo) ListAll(ctx context.Context) ([]models.Event, error) {
	out := []models.Event{}
	err := r.v.do(func(st *state) error {
		for _, e := range st.events {
			out = append(out, *cloneEvent(e))
		}
		return nil
	})
	sortEvents(out)
	return out, err
}

func (r *eventRepo) Save(ctx context.Context, event *models.Event) error {
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.RecountAvailable()
	return r.v.do(func(st *state) error {
		st.events[event.ID] = cloneEvent(event)
		return nil
	})
}

func (r *eventRepo) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.v.do(func(st *state) error {
		_, found = st.events[id]
		delete(st.events, id)
		return nil
	})
	return found, err
}

func (r *eventRepo) AdjustLocalityCapacity(ctx context.Context, eventID, localityName string, delta int) error {
	return r.v.do(func(st *state) error {
		e, ok := st.events[eventID]
		if !ok {
			return repository.ErrLocalityNotFound
		}
		l := e.Locality(localityName)
		if l == nil {
			return repository.ErrLocalityNotFound
		}
		next := l.RemainingCapacity + delta
		if next < 0 {
			return repository.ErrInsufficientCapacity
		}
		if next > l.TotalCapacity {
			return repository.ErrCapacityOverflow
		}
		l.RemainingCapacity = next
		e.RecountAvailable()
		return nil
	})
}

type cartRepo struct{ v *view }

func (r *cartRepo) find(pred func(c *models.Cart) bool) (*models.Cart, error) {
	var out *models.Cart
	err := r.v.do(func(st *state) error {
		for _, c := range st.carts {
			if pred(c) {
				out = c.Clone()
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *cartRepo) GetByID(ctx context.Context, id string) (*models.Cart, error) {
	return r.find(func(c *models.Cart) bool { return c.ID == id })
}

func (r *cartRepo) GetActiveByClient(ctx context.Context, clientID string) (*models.Cart, error) {
	return r.find(func(c *models.Cart) bool {
		return c.ClientID == clientID && (c.Status == models.CartOpen || c.Status == models.CartPendingPayment)
	})
}

func (r *cartRepo) GetByCheckoutAttempt(ctx context.Context, attemptID string) (*models.Cart, error) {
	if attemptID == "" {
		return nil, nil
	}
	return r.find(func(c *models.Cart) bool { return c.CheckoutAttemptID == attemptID })
}

func (r *cartRepo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Cart, error) {
	out := []models.Cart{}
	err := r.v.do(func(st *state) error {
		for _, c := range st.carts {
			if c.Status == models.CartPendingPayment && c.CheckoutStartedAt != nil && c.CheckoutStartedAt.Before(before) {
				out = append(out, *c.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CheckoutStartedAt.Before(*out[j].CheckoutStartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *cartRepo) Create(ctx context.Context, cart *models.Cart) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.carts[cart.ID]; ok {
			return repository.ErrDuplicate
		}
		if cart.Status == models.CartOpen || cart.Status == models.CartPendingPayment {
			for _, c := range st.carts {
				if c.ClientID == cart.ClientID && (c.Status == models.CartOpen || c.Status == models.CartPendingPayment) {
					return repository.ErrDuplicate
				}
			}
		}
		st.carts[cart.ID] = cart.Clone()
		return nil
	})
}

func (r *cartRepo) Update(ctx context.Context, cart *models.Cart, expected models.CartStatus) error {
	return r.v.do(func(st *state) error {
		cur, ok := st.carts[cart.ID]
		if !ok || cur.Status != expected {
			return repository.ErrConflict
		}
		cart.UpdatedAt = time.Now()
		st.carts[cart.ID] = cart.Clone()
		return nil
	})
}

type couponRepo struct{ v *view }

func (r *couponRepo) GetByName(ctx context.Context, name string) (*models.Coupon, error) {
	var out *models.Coupon
	err := r.v.do(func(st *state) error {
		if c, ok := st.coupons[name]; ok {
			cp := *c
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r *couponRepo) List(ctx context.Context) ([]models.Coupon, error) {
	out := []models.Coupon{}
	err := r.v.do(func(st *state) error {
		for _, c := range st.coupons {
			out = append(out, *c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *couponRepo) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.coupons[coupon.Name]; ok {
			return repository.ErrDuplicate
		}
		if coupon.CreatedAt.IsZero() {
			coupon.CreatedAt = time.Now()
		}
		cp := *coupon
		st.coupons[coupon.Name] = &cp
		return nil
	})
}

func (r *couponRepo) Update(ctx context.Context, coupon *models.Coupon) error {
	return r.v.do(func(st *state) error {
		cur, ok := st.coupons[coupon.Name]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *coupon
		cp.CreatedAt = cur.CreatedAt
		st.coupons[coupon.Name] = &cp
		return nil
	})
}

func (r *couponRepo) Delete(ctx context.Context, name string) (bool, error) {
	var found bool
	err := r.v.do(func(st *state) error {
		_, found = st.coupons[name]
		delete(st.coupons, name)
		return nil
	})
	return found, err
}

func (r *couponRepo) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.v.do(func(st *state) error {
		n = int64(len(st.coupons))
		st.coupons = map[string]*models.Coupon{}
		return nil
	})
	return n, err
}

func (r *couponRepo) MarkConsumed(ctx context.Context, name string) error {
	return r.v.do(func(st *state) error {
		if c, ok := st.coupons[name]; ok {
			c.Used = true
		}
		return nil
	})
}

type clientRepo struct{ v *view }

func (r *clientRepo) find(pred func(c *models.Client) bool) (*models.Client, error) {
	var out *models.Client
	err := r.v.do(func(st *state) error {
		for _, c := range st.clients {
			if pred(c) {
				out = cloneClient(c)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*models.Client, error) {
	return r.find(func(c *models.Client) bool { return c.ID == id })
}

func (r *clientRepo) GetByEmail(ctx context.Context, email string) (*models.Client, error) {
	email = strings.ToLower(email)
	return r.find(func(c *models.Client) bool { return c.Email == email })
}

func (r *clientRepo) Create(ctx context.Context, client *models.Client) error {
	client.Email = strings.ToLower(client.Email)
	return r.v.do(func(st *state) error {
		for _, c := range st.clients {
			if c.ID == client.ID || c.Email == client.Email {
				return repository.ErrDuplicate
			}
		}
		if client.CreatedAt.IsZero() {
			client.CreatedAt = time.Now()
		}
		if client.UsedCoupons == nil {
			client.UsedCoupons = []string{}
		}
		st.clients[client.ID] = cloneClient(client)
		return nil
	})
}

func (r *clientRepo) Update(ctx context.Context, client *models.Client) error {
	client.Email = strings.ToLower(client.Email)
	return r.v.do(func(st *state) error {
		cur, ok := st.clients[client.ID]
		if !ok {
			return repository.ErrNotFound
		}
		for _, c := range st.clients {
			if c.ID != client.ID && c.Email == client.Email {
				return repository.ErrDuplicate
			}
		}
		next := cloneClient(client)
		next.UsedCoupons = cur.UsedCoupons
		next.CreatedAt = cur.CreatedAt
		st.clients[client.ID] = next
		return nil
	})
}

func (r *clientRepo) AddUsedCoupon(ctx context.Context, clientID, couponName string) error {
	return r.v.do(func(st *state) error {
		c, ok := st.clients[clientID]
		if !ok {
			return repository.ErrNotFound
		}
		if !c.HasUsedCoupon(couponName) {
			c.UsedCoupons = append(c.UsedCoupons, couponName)
		}
		return nil
	})
}

type adminRepo struct{ v *view }

func (r *adminRepo) find(pred func(a *models.Admin) bool) (*models.Admin, error) {
	var out *models.Admin
	err := r.v.do(func(st *state) error {
		for _, a := range st.admins {
			if pred(a) {
				cp := *a
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *adminRepo) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	return r.find(func(a *models.Admin) bool { return a.ID == id })
}

func (r *adminRepo) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	return r.find(func(a *models.Admin) bool { return a.Username == username })
}

func (r *adminRepo) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	email = strings.ToLower(email)
	return r.find(func(a *models.Admin) bool { return a.Email == email })
}

func (r *adminRepo) Create(ctx context.Context, admin *models.Admin) error {
	admin.Email = strings.ToLower(admin.Email)
	return r.v.do(func(st *state) error {
		for _, a := range st.admins {
			if a.ID == admin.ID || a.Username == admin.Username {
				return repository.ErrDuplicate
			}
		}
		cp := *admin
		st.admins[admin.ID] = &cp
		return nil
	})
}

func (r *adminRepo) Update(ctx context.Context, admin *models.Admin) error {
	admin.Email = strings.ToLower(admin.Email)
	return r.v.do(func(st *state) error {
		if _, ok := st.admins[admin.ID]; !ok {
			return repository.ErrNotFound
		}
		cp := *admin
		st.admins[admin.ID] = &cp
		return nil
	})
}

func (r *adminRepo) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.v.do(func(st *state) error {
		_, found = st.admins[id]
		delete(st.admins, id)
		return nil
	})
	return found, err
}

type purchaseRepo struct{ v *view }

func (r *purchaseRepo) Create(ctx context.Context, p *models.Purchase) error {
	return r.v.do(func(st *state) error {
		for _, existing := range st.purchases {
			if existing.CheckoutAttemptID == p.CheckoutAttemptID {
				return repository.ErrDuplicate
			}
		}
		cp := *p
		cp.Orders = append([]models.LocalityOrder{}, p.Orders...)
		st.purchases[p.ID] = &cp
		return nil
	})
}

func (r *purchaseRepo) GetByCheckoutAttempt(ctx context.Context, attemptID string) (*models.Purchase, error) {
	var out *models.Purchase
	err := r.v.do(func(st *state) error {
		for _, p := range st.purchases {
			if p.CheckoutAttemptID == attemptID {
				cp := *p
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *purchaseRepo) ListByClient(ctx context.Context, clientID string, page, size int) ([]models.Purchase, int64, error) {
	var all []models.Purchase
	err := r.v.do(func(st *state) error {
		for _, p := range st.purchases {
			if p.ClientID == clientID {
				all = append(all, *p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].PurchasedAt.After(all[j].PurchasedAt) })
	total := int64(len(all))
	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return append([]models.Purchase{}, all[start:end]...), total, nil
}
