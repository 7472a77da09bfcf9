package patient

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rs/zerolog"

	"github.com/smilehealth/smilehealth/internal/domain/activity"
	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/blobstore"
	"github.com/smilehealth/smilehealth/internal/platform/db"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
	shares   map[uuid.UUID][]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: map[uuid.UUID]*Patient{}, shares: map[uuid.UUID][]uuid.UUID{}}
}

func (m *mockRepo) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	cp.SharedWith = m.shares[id]
	return &cp, nil
}

func (m *mockRepo) Update(ctx context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return errors.New("not found")
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.patients, id)
	delete(m.shares, id)
	return nil
}

func (m *mockRepo) ListVisible(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for id, p := range m.patients {
		if p.GroupID != nil {
			continue
		}
		visible := p.OwnerID == userID || p.Visibility == visibility.PublicOrg
		if p.Visibility == visibility.Shared {
			for _, uid := range m.shares[id] {
				if uid == userID {
					visible = true
				}
			}
		}
		if visible {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListAll(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.GroupID != nil && *p.GroupID == groupID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ReplaceShares(ctx context.Context, patientID uuid.UUID, userIDs []uuid.UUID) error {
	m.shares[patientID] = userIDs
	return nil
}

func (m *mockRepo) ClearShares(ctx context.Context, patientID uuid.UUID) error {
	delete(m.shares, patientID)
	return nil
}

func (m *mockRepo) CountSharedWith(ctx context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for id, p := range m.patients {
		if p.OwnerID == userID || p.Visibility != visibility.Shared {
			continue
		}
		for _, uid := range m.shares[id] {
			if uid == userID {
				n++
			}
		}
	}
	return n, nil
}

type mockCommentRepo struct {
	comments map[uuid.UUID]*Comment
}

func newMockCommentRepo() *mockCommentRepo {
	return &mockCommentRepo{comments: map[uuid.UUID]*Comment{}}
}

func (m *mockCommentRepo) Create(ctx context.Context, c *Comment) error {
	c.ID = uuid.New()
	m.comments[c.ID] = c
	return nil
}

func (m *mockCommentRepo) GetByID(ctx context.Context, id uuid.UUID) (*Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (m *mockCommentRepo) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Comment, int, error) {
	var out []*Comment
	for _, c := range m.comments {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *mockCommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.comments, id)
	return nil
}

type mockGroupSource struct {
	groups map[uuid.UUID]*visibility.Group
}

func (m *mockGroupSource) ViewFor(ctx context.Context, id uuid.UUID) (*visibility.Group, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	g, ok := m.groups[id]
	if !ok {
		return nil, errors.New("case group not found")
	}
	return g, nil
}

type recorderSpy struct {
	entries []string
}

func (r *recorderSpy) Record(ctx context.Context, actorID uuid.UUID, action, targetType string, targetID uuid.UUID, targetLabel, details string) {
	r.entries = append(r.entries, action+":"+targetLabel)
}

type mockMediaSource struct {
	paths map[uuid.UUID][]string
}

func (m *mockMediaSource) PathsForPatient(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	return m.paths[patientID], nil
}

type testFixture struct {
	repo   *mockRepo
	groups *mockGroupSource
	media  *mockMediaSource
	blobs  *blobstore.MemoryStore
	rec    *recorderSpy
}

func newFixture() (*Service, *testFixture) {
	f := &testFixture{
		repo:   newMockRepo(),
		groups: &mockGroupSource{groups: map[uuid.UUID]*visibility.Group{}},
		media:  &mockMediaSource{paths: map[uuid.UUID][]string{}},
		blobs:  blobstore.NewMemoryStore(),
		rec:    &recorderSpy{},
	}
	svc := NewService(f.repo, newMockCommentRepo(), f.groups, f.media, f.blobs, f.rec, db.PassthroughRunner{}, zerolog.Nop())
	return svc, f
}

func newTestService() (*Service, *mockRepo, *mockGroupSource, *recorderSpy) {
	svc, f := newFixture()
	return svc, f.repo, f.groups, f.rec
}

func member() visibility.Actor {
	return visibility.NewActor(uuid.New(), false, visibility.RoleDoctor)
}

func adminActor() visibility.Actor {
	return visibility.NewActor(uuid.New(), true, visibility.RoleViewer)
}

func TestCreateRecordsActivity(t *testing.T) {
	svc, _, _, rec := newTestService()
	owner := member()

	p, err := svc.Create(context.Background(), owner, CreateParams{FirstName: "John", LastName: "Doe"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Visibility != visibility.Private {
		t.Fatalf("visibility = %s, want PRIVATE", p.Visibility)
	}
	if len(rec.entries) != 1 || rec.entries[0] != activity.ActionCreate+":John Doe" {
		t.Fatalf("recorded = %v", rec.entries)
	}
}

func TestCreateInGroupRequiresAccess(t *testing.T) {
	svc, repo, groups, _ := newTestService()
	owner := member()
	stranger := member()

	groupID := uuid.New()
	groups.groups[groupID] = &visibility.Group{
		ID:         groupID,
		CreatedBy:  owner.ID,
		Visibility: visibility.Private,
	}

	_, err := svc.Create(context.Background(), stranger, CreateParams{
		FirstName: "Jane", LastName: "Roe", GroupID: &groupID,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if len(repo.patients) != 0 {
		t.Fatal("no patient row may be created on a rejected group add")
	}

	if _, err := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Jane", LastName: "Roe", GroupID: &groupID,
	}); err != nil {
		t.Fatalf("group creator add: %v", err)
	}
}

func TestGroupedPatientDelegatesToGroup(t *testing.T) {
	svc, _, groups, _ := newTestService()
	owner := member()
	colleague := member()

	groupID := uuid.New()
	groups.groups[groupID] = &visibility.Group{
		ID:         groupID,
		CreatedBy:  owner.ID,
		Visibility: visibility.Shared,
		SharedWith: []uuid.UUID{colleague.ID},
	}

	// The record itself is PRIVATE; group rules still grant the view.
	p, err := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Ann", LastName: "Grouped", GroupID: &groupID, Visibility: visibility.Private,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(context.Background(), colleague, p.ID); err != nil {
		t.Fatalf("group share should grant view: %v", err)
	}
	if _, err := svc.Get(context.Background(), member(), p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatal("stranger should not view grouped patient")
	}
}

func TestViewDoesNotGrantEdit(t *testing.T) {
	svc, _, _, _ := newTestService()
	owner := member()
	viewer := member()

	p, _ := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Pub", LastName: "Lic", Visibility: visibility.PublicOrg,
	})

	if _, err := svc.Get(context.Background(), viewer, p.ID); err != nil {
		t.Fatalf("org-public record should be viewable: %v", err)
	}
	name := "changed"
	if _, err := svc.Update(context.Background(), viewer, p.ID, UpdateParams{FirstName: &name}); !errors.Is(err, ErrForbidden) {
		t.Fatal("viewer must not edit")
	}
	if _, err := svc.Update(context.Background(), adminActor(), p.ID, UpdateParams{FirstName: &name}); err != nil {
		t.Fatalf("admin edit: %v", err)
	}
}

func TestSetVisibilityPrivateClearsShares(t *testing.T) {
	svc, repo, _, _ := newTestService()
	owner := member()
	colleague := uuid.New()

	p, _ := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Sh", LastName: "Ared", Visibility: visibility.Shared,
	})
	if _, err := svc.ReplaceShares(context.Background(), owner, p.ID, []uuid.UUID{colleague}); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.SetVisibility(context.Background(), owner, p.ID, visibility.Private)
	if err != nil {
		t.Fatalf("SetVisibility: %v", err)
	}
	if len(updated.SharedWith) != 0 || len(repo.shares[p.ID]) != 0 {
		t.Fatal("shares must be cleared on switch to PRIVATE")
	}

	// Idempotent: applying PRIVATE again keeps the empty set.
	again, err := svc.SetVisibility(context.Background(), owner, p.ID, visibility.Private)
	if err != nil {
		t.Fatalf("second SetVisibility: %v", err)
	}
	if len(again.SharedWith) != 0 {
		t.Fatal("repeat PRIVATE must stay empty")
	}
}

func TestReplaceSharesDropsOwnerAndReplacesAtomically(t *testing.T) {
	svc, repo, _, rec := newTestService()
	owner := member()
	a, b := uuid.New(), uuid.New()

	p, _ := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Re", LastName: "Share", Visibility: visibility.Shared,
	})

	if _, err := svc.ReplaceShares(context.Background(), owner, p.ID, []uuid.UUID{a, owner.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ReplaceShares(context.Background(), owner, p.ID, []uuid.UUID{b}); err != nil {
		t.Fatal(err)
	}

	stored := repo.shares[p.ID]
	if len(stored) != 1 || stored[0] != b {
		t.Fatalf("shares = %v, want full replacement with [b]", stored)
	}

	shareCount := 0
	for _, e := range rec.entries {
		if e == activity.ActionShare+":Re Share" {
			shareCount++
		}
	}
	if shareCount != 2 {
		t.Fatalf("share mutations recorded = %d, want 2", shareCount)
	}
}

func TestCountSharedWithExcludesPublicOrg(t *testing.T) {
	svc, repo, _, _ := newTestService()
	owner := member()
	me := member()

	shared, _ := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "S", LastName: "One", Visibility: visibility.Shared,
	})
	svc.ReplaceShares(context.Background(), owner, shared.ID, []uuid.UUID{me.ID})

	svc.Create(context.Background(), owner, CreateParams{
		FirstName: "P", LastName: "Org", Visibility: visibility.PublicOrg,
	})

	n, err := svc.CountSharedWith(context.Background(), me)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("shared count = %d, want 1 (org-public excluded)", n)
	}
	_ = repo
}

func TestCommentsRequireViewOnly(t *testing.T) {
	svc, _, groups, _ := newTestService()
	owner := member()
	colleague := member()

	groupID := uuid.New()
	groups.groups[groupID] = &visibility.Group{
		ID:         groupID,
		CreatedBy:  owner.ID,
		Visibility: visibility.Shared,
		SharedWith: []uuid.UUID{colleague.ID},
	}
	p, _ := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Co", LastName: "Mment", GroupID: &groupID,
	})

	comment, err := svc.AddComment(context.Background(), colleague, p.ID, "  looks stable  ")
	if err != nil {
		t.Fatalf("viewer comment: %v", err)
	}
	if comment.Body != "looks stable" {
		t.Fatalf("body = %q, want trimmed", comment.Body)
	}

	if _, err := svc.AddComment(context.Background(), member(), p.ID, "hi"); !errors.Is(err, ErrForbidden) {
		t.Fatal("non-viewer must not comment")
	}
	if _, err := svc.AddComment(context.Background(), colleague, p.ID, "   "); err == nil {
		t.Fatal("blank comment must be rejected")
	}

	long := make([]byte, MaxCommentLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := svc.AddComment(context.Background(), colleague, p.ID, string(long)); err == nil {
		t.Fatal("over-length comment must be rejected")
	}
}

func TestDeleteCommentAuthorOrAdmin(t *testing.T) {
	svc, _, _, _ := newTestService()
	owner := member()
	other := member()

	p, _ := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Del", LastName: "Comm", Visibility: visibility.PublicOrg,
	})
	comment, err := svc.AddComment(context.Background(), other, p.ID, "note")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteComment(context.Background(), owner, comment.ID); !errors.Is(err, ErrForbidden) {
		t.Fatal("patient owner is not the comment author")
	}
	if err := svc.DeleteComment(context.Background(), other, comment.ID); err != nil {
		t.Fatalf("author delete: %v", err)
	}
}

func TestThumbnailForbiddenWritesNothing(t *testing.T) {
	svc, f := newFixture()
	owner := member()
	stranger := member()

	p, _ := svc.Create(context.Background(), owner, CreateParams{
		FirstName: "Thumb", LastName: "Nail", Visibility: visibility.PublicOrg,
	})
	existing := "thumbnails/" + p.ID.String() + ".jpg"
	if _, _, err := f.blobs.Save(context.Background(), existing, strings.NewReader("owner-bytes")); err != nil {
		t.Fatal(err)
	}
	f.repo.patients[p.ID].ThumbnailPath = &existing

	_, err := svc.SetThumbnail(context.Background(), stranger, p.ID, "evil.jpg", strings.NewReader("intruder-bytes"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	rc, err := f.blobs.Open(context.Background(), existing)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "owner-bytes" {
		t.Fatalf("rejected upload mutated stored thumbnail: now %q", got)
	}
	if n := len(f.blobs.Paths()); n != 1 {
		t.Fatalf("rejected upload left %d stored files, want 1", n)
	}
}

func TestThumbnailReplaceRemovesOldBlob(t *testing.T) {
	svc, f := newFixture()
	owner := member()

	p, _ := svc.Create(context.Background(), owner, CreateParams{FirstName: "Re", LastName: "Place"})
	if _, err := svc.SetThumbnail(context.Background(), owner, p.ID, "face.jpg", strings.NewReader("first")); err != nil {
		t.Fatal(err)
	}
	updated, err := svc.SetThumbnail(context.Background(), owner, p.ID, "face.png", strings.NewReader("second"))
	if err != nil {
		t.Fatal(err)
	}

	oldPath := "thumbnails/" + p.ID.String() + ".jpg"
	if ok, _ := f.blobs.Exists(context.Background(), oldPath); ok {
		t.Fatal("replaced thumbnail blob should be removed")
	}
	if updated.ThumbnailPath == nil || *updated.ThumbnailPath != "thumbnails/"+p.ID.String()+".png" {
		t.Fatalf("row points at %v", updated.ThumbnailPath)
	}
	if ok, _ := f.blobs.Exists(context.Background(), *updated.ThumbnailPath); !ok {
		t.Fatal("new thumbnail blob missing")
	}
}

func TestDeletePurgesStoredFiles(t *testing.T) {
	svc, f := newFixture()
	owner := member()

	p, _ := svc.Create(context.Background(), owner, CreateParams{FirstName: "Purge", LastName: "Me"})
	var mediaPaths []string
	for _, name := range []string{"scan.jpg", "jaw.stl"} {
		dest := "patients/" + p.ID.String() + "/" + name
		if _, _, err := f.blobs.Save(context.Background(), dest, strings.NewReader(name)); err != nil {
			t.Fatal(err)
		}
		mediaPaths = append(mediaPaths, dest)
	}
	f.media.paths[p.ID] = mediaPaths

	thumb := "thumbnails/" + p.ID.String() + ".jpg"
	if _, _, err := f.blobs.Save(context.Background(), thumb, strings.NewReader("thumb")); err != nil {
		t.Fatal(err)
	}
	f.repo.patients[p.ID].ThumbnailPath = &thumb

	if err := svc.Delete(context.Background(), owner, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(context.Background(), owner, p.ID); err == nil {
		t.Fatal("record should be gone")
	}
	if paths := f.blobs.Paths(); len(paths) != 0 {
		t.Fatalf("blobs survived record delete: %v", paths)
	}
}
