// Package servicetest provides in-memory implementations of the service
// store interfaces. They enforce the same uniqueness rules as the MySQL
// repositories and are safe for concurrent use.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
)

// Users is an in-memory UserStore. Set Fail to make every lookup and
// insert return that error.
type Users struct {
	mu   sync.Mutex
	byID map[string]model.User
	Fail error
}

func NewUsers() *Users { return &Users{byID: map[string]model.User{}} }

func (m *Users) Create(_ context.Context, email, hash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return model.User{}, m.Fail
	}
	for _, u := range m.byID {
		if u.Email == email {
			return model.User{}, repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	u := model.User{ID: uuid.NewString(), Email: email, PasswordHash: hash, IsActive: true, CreatedAt: now, UpdatedAt: now}
	m.byID[u.ID] = u
	return u, nil
}

func (m *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return model.User{}, m.Fail
	}
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *Users) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return model.User{}, m.Fail
	}
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *Users) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *Users) SetActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.IsActive = active
	m.byID[id] = u
}

// History is an in-memory HistoryStore.
type History struct {
	mu   sync.Mutex
	recs []model.LoginHistory
}

func (m *History) Append(_ context.Context, rec model.LoginHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.recs = append(m.recs, rec)
	return nil
}

// Len returns the number of stored records.
func (m *History) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func (m *History) ListByUser(_ context.Context, userID string, limit, offset int) ([]model.LoginHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var mine []model.LoginHistory
	for _, r := range m.recs {
		if r.UserID == userID {
			mine = append(mine, r)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	out := []model.LoginHistory{}
	for i := offset; i < len(mine) && len(out) < limit; i++ {
		out = append(out, mine[i])
	}
	return out, nil
}

// Roles is an in-memory RoleStore. Set Fail to break HasRole.
type Roles struct {
	mu      sync.Mutex
	byName  map[string]model.Role
	members map[[2]string]bool // (user id, role id)
	Fail    error
}

func NewRoles() *Roles {
	return &Roles{byName: map[string]model.Role{}, members: map[[2]string]bool{}}
}

func (m *Roles) List(context.Context) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Role{}
	for _, r := range m.byName {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Roles) GetByName(_ context.Context, name string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byName[name]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *Roles) Create(_ context.Context, name, description string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[name]; ok {
		return model.Role{}, repository.ErrConflict
	}
	r := model.Role{ID: uuid.NewString(), Name: name, Description: description, CreatedAt: time.Now().UTC()}
	m.byName[name] = r
	return r, nil
}

func (m *Roles) DeleteByName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byName[name]
	if !ok {
		return repository.ErrNotFound
	}
	for k := range m.members {
		if k[1] == r.ID {
			delete(m.members, k)
		}
	}
	delete(m.byName, name)
	return nil
}

func (m *Roles) Assign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]string{userID, roleID}
	if m.members[k] {
		return repository.ErrConflict
	}
	m.members[k] = true
	return nil
}

func (m *Roles) Unassign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]string{userID, roleID}
	if !m.members[k] {
		return repository.ErrNotFound
	}
	delete(m.members, k)
	return nil
}

func (m *Roles) ForUser(_ context.Context, userID string) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Role{}
	for _, r := range m.byName {
		if m.members[[2]string{userID, r.ID}] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Roles) HasRole(_ context.Context, userID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	r, ok := m.byName[name]
	if !ok {
		return false, nil
	}
	return m.members[[2]string{userID, r.ID}], nil
}

// Accounts links provider identities to users kept in Users, sharing its
// email uniqueness.
type Accounts struct {
	mu     sync.Mutex
	users  *Users
	links  map[string]string // provider|subject -> user id
	hashed int
}

func NewAccounts(users *Users) *Accounts {
	return &Accounts{users: users, links: map[string]string{}}
}

func (a *Accounts) ResolveOrCreate(ctx context.Context, provider, subject, email string, newHash func() (string, error)) (model.User, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := provider + "|" + subject
	if id, ok := a.links[key]; ok {
		u, err := a.users.GetByID(ctx, id)
		return u, false, err
	}
	hash, err := newHash()
	if err != nil {
		return model.User{}, false, err
	}
	a.hashed++
	u, err := a.users.Create(ctx, email, hash)
	if err != nil {
		return model.User{}, false, err
	}
	a.links[key] = u.ID
	return u, true, nil
}

// Hashed reports how many new-user password hashes were requested.
func (a *Accounts) Hashed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hashed
}

// Len returns the number of links.
func (a *Accounts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.links)
}
