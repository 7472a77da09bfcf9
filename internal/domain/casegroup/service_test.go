package casegroup

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/smilehealth/smilehealth/internal/domain/activity"
	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/db"
)

type mockRepo struct {
	groups map[uuid.UUID]*CaseGroup
	shares map[uuid.UUID][]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{groups: map[uuid.UUID]*CaseGroup{}, shares: map[uuid.UUID][]uuid.UUID{}}
}

func (m *mockRepo) Create(ctx context.Context, g *CaseGroup) error {
	g.ID = uuid.New()
	m.groups[g.ID] = g
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*CaseGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *g
	cp.SharedWith = m.shares[id]
	return &cp, nil
}

func (m *mockRepo) Update(ctx context.Context, g *CaseGroup) error {
	if _, ok := m.groups[g.ID]; !ok {
		return errors.New("not found")
	}
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.groups, id)
	delete(m.shares, id)
	return nil
}

func (m *mockRepo) ListVisible(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CaseGroup, int, error) {
	var out []*CaseGroup
	for id, g := range m.groups {
		visible := g.CreatedBy == userID
		if g.Visibility == visibility.Shared {
			for _, uid := range m.shares[id] {
				if uid == userID {
					visible = true
				}
			}
		}
		if visible {
			out = append(out, g)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListAll(ctx context.Context, limit, offset int) ([]*CaseGroup, int, error) {
	var out []*CaseGroup
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, len(out), nil
}

func (m *mockRepo) ReplaceShares(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) error {
	m.shares[groupID] = userIDs
	return nil
}

func (m *mockRepo) ClearShares(ctx context.Context, groupID uuid.UUID) error {
	delete(m.shares, groupID)
	return nil
}

type recorderSpy struct {
	actions []string
}

func (r *recorderSpy) Record(ctx context.Context, actorID uuid.UUID, action, targetType string, targetID uuid.UUID, targetLabel, details string) {
	r.actions = append(r.actions, action)
}

func newTestService() (*Service, *mockRepo, *recorderSpy) {
	repo := newMockRepo()
	rec := &recorderSpy{}
	return NewService(repo, rec, db.PassthroughRunner{}), repo, rec
}

func member(role visibility.Role) visibility.Actor {
	return visibility.NewActor(uuid.New(), false, role)
}

func TestCreateDefaultsToPrivate(t *testing.T) {
	svc, _, rec := newTestService()
	owner := member(visibility.RoleDoctor)

	g, err := svc.Create(context.Background(), owner, CreateParams{Name: "Ortho cases"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.Visibility != visibility.Private {
		t.Fatalf("visibility = %s, want PRIVATE", g.Visibility)
	}
	if g.CreatedBy != owner.ID {
		t.Fatal("created_by not set to actor")
	}
	if len(rec.actions) != 1 || rec.actions[0] != activity.ActionCreate {
		t.Fatalf("recorded actions = %v", rec.actions)
	}
}

func TestCreateRejectsAnonymous(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Create(context.Background(), visibility.Actor{}, CreateParams{Name: "x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestGetEnforcesVisibility(t *testing.T) {
	svc, _, _ := newTestService()
	owner := member(visibility.RoleDoctor)
	other := member(visibility.RoleDoctor)
	admin := visibility.NewActor(uuid.New(), true, visibility.RoleViewer)

	g, err := svc.Create(context.Background(), owner, CreateParams{Name: "private"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(context.Background(), owner, g.ID); err != nil {
		t.Fatalf("owner should view own group: %v", err)
	}
	if _, err := svc.Get(context.Background(), other, g.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger on private group: err = %v, want ErrForbidden", err)
	}
	if _, err := svc.Get(context.Background(), admin, g.ID); err != nil {
		t.Fatalf("admin should view any group: %v", err)
	}
}

func TestReplaceSharesDropsOwner(t *testing.T) {
	svc, repo, _ := newTestService()
	owner := member(visibility.RoleDoctor)
	colleague := uuid.New()

	g, err := svc.Create(context.Background(), owner, CreateParams{Name: "shared", Visibility: visibility.Shared})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.ReplaceShares(context.Background(), owner, g.ID, []uuid.UUID{owner.ID, colleague})
	if err != nil {
		t.Fatalf("ReplaceShares: %v", err)
	}
	if len(updated.SharedWith) != 1 || updated.SharedWith[0] != colleague {
		t.Fatalf("shares = %v, want only colleague", updated.SharedWith)
	}
	if len(repo.shares[g.ID]) != 1 {
		t.Fatalf("stored shares = %v", repo.shares[g.ID])
	}
}

func TestShareGrantsView(t *testing.T) {
	svc, _, _ := newTestService()
	owner := member(visibility.RoleDoctor)
	colleague := member(visibility.RoleAssistant)

	g, _ := svc.Create(context.Background(), owner, CreateParams{Name: "shared", Visibility: visibility.Shared})
	if _, err := svc.Get(context.Background(), colleague, g.ID); !errors.Is(err, ErrForbidden) {
		t.Fatal("colleague should not see group before sharing")
	}

	if _, err := svc.ReplaceShares(context.Background(), owner, g.ID, []uuid.UUID{colleague.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(context.Background(), colleague, g.ID); err != nil {
		t.Fatalf("colleague should see group after sharing: %v", err)
	}
}

func TestSetVisibilityPrivateClearsShares(t *testing.T) {
	svc, repo, rec := newTestService()
	owner := member(visibility.RoleDoctor)
	colleague := member(visibility.RoleDoctor)

	g, _ := svc.Create(context.Background(), owner, CreateParams{Name: "shared", Visibility: visibility.Shared})
	if _, err := svc.ReplaceShares(context.Background(), owner, g.ID, []uuid.UUID{colleague.ID}); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.SetVisibility(context.Background(), owner, g.ID, visibility.Private)
	if err != nil {
		t.Fatalf("SetVisibility: %v", err)
	}
	if len(updated.SharedWith) != 0 {
		t.Fatalf("shares after PRIVATE = %v, want none", updated.SharedWith)
	}
	if len(repo.shares[g.ID]) != 0 {
		t.Fatalf("stored shares after PRIVATE = %v", repo.shares[g.ID])
	}
	if _, err := svc.Get(context.Background(), colleague, g.ID); !errors.Is(err, ErrForbidden) {
		t.Fatal("colleague should lose access when group turns private")
	}

	found := false
	for _, a := range rec.actions {
		if a == activity.ActionVisibilityChange {
			found = true
		}
	}
	if !found {
		t.Fatalf("no visibility change recorded: %v", rec.actions)
	}
}

func TestManageIsOwnerOrAdminOnly(t *testing.T) {
	svc, _, _ := newTestService()
	owner := member(visibility.RoleDoctor)
	shared := member(visibility.RoleDoctor)
	admin := visibility.NewActor(uuid.New(), true, visibility.RoleViewer)

	g, _ := svc.Create(context.Background(), owner, CreateParams{Name: "g", Visibility: visibility.Shared})
	if _, err := svc.ReplaceShares(context.Background(), owner, g.ID, []uuid.UUID{shared.ID}); err != nil {
		t.Fatal(err)
	}

	name := "renamed"
	if _, err := svc.Update(context.Background(), shared, g.ID, UpdateParams{Name: &name}); !errors.Is(err, ErrForbidden) {
		t.Fatal("share recipient must not manage the group")
	}
	if _, err := svc.Update(context.Background(), admin, g.ID, UpdateParams{Name: &name}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if err := svc.Delete(context.Background(), shared, g.ID); !errors.Is(err, ErrForbidden) {
		t.Fatal("share recipient must not delete the group")
	}
	if err := svc.Delete(context.Background(), owner, g.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestListVisible(t *testing.T) {
	svc, _, _ := newTestService()
	owner := member(visibility.RoleDoctor)
	other := member(visibility.RoleDoctor)
	admin := visibility.NewActor(uuid.New(), true, visibility.RoleViewer)

	svc.Create(context.Background(), owner, CreateParams{Name: "mine"})
	svc.Create(context.Background(), other, CreateParams{Name: "theirs"})
	sharedGroup, _ := svc.Create(context.Background(), other, CreateParams{Name: "shared", Visibility: visibility.Shared})
	if _, err := svc.ReplaceShares(context.Background(), other, sharedGroup.ID, []uuid.UUID{owner.ID}); err != nil {
		t.Fatal(err)
	}

	groups, _, err := svc.List(context.Background(), owner, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("owner sees %d groups, want 2 (own + shared with them)", len(groups))
	}

	groups, _, _ = svc.List(context.Background(), admin, 20, 0)
	if len(groups) != 3 {
		t.Fatalf("admin sees %d groups, want 3", len(groups))
	}
}
