package metadata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldju/cerberus/internal/domain"
)

// --- in-memory fakes ---

type fakeDirectory struct {
	categories map[string]uuid.UUID
	roles      map[string]uuid.UUID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		categories: map[string]uuid.UUID{"Applications": uuid.New()},
		roles: map[string]uuid.UUID{
			"owner": uuid.New(),
			"write": uuid.New(),
			"read":  uuid.New(),
		},
	}
}

func (d *fakeDirectory) CategoryIDByName(_ context.Context, name string) (uuid.UUID, bool, error) {
	id, ok := d.categories[name]
	return id, ok, nil
}

func (d *fakeDirectory) RoleByName(_ context.Context, name string) (*domain.Role, error) {
	id, ok := d.roles[name]
	if !ok {
		return nil, nil
	}
	return &domain.Role{ID: id, Name: name}, nil
}

func (d *fakeDirectory) CategoryIDToNameMap(_ context.Context) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(d.categories))
	for name, id := range d.categories {
		out[id] = name
	}
	return out, nil
}

func (d *fakeDirectory) RoleIDToNameMap(_ context.Context) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(d.roles))
	for name, id := range d.roles {
		out[id] = name
	}
	return out, nil
}

type fakeSDBStore struct {
	boxes    []domain.SafeDepositBox
	restored []*domain.SafeDepositBox
}

func (s *fakeSDBStore) IDByName(_ context.Context, name string) (uuid.UUID, bool, error) {
	for _, b := range s.boxes {
		if b.Name == name {
			return b.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (s *fakeSDBStore) ListPage(_ context.Context, limit, offset int) ([]domain.SafeDepositBox, int, error) {
	total := len(s.boxes)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return s.boxes[offset:end], total, nil
}

func (s *fakeSDBStore) Restore(_ context.Context, sdb *domain.SafeDepositBox, _ string) error {
	cp := *sdb
	s.restored = append(s.restored, &cp)
	return nil
}

func testEngine(sdbs *fakeSDBStore, dir Directory) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(sdbs, dir, nil, logger)
}

func seedBoxes(dir *fakeDirectory, n int) []domain.SafeDepositBox {
	boxes := make([]domain.SafeDepositBox, 0, n)
	for i := 0; i < n; i++ {
		boxes = append(boxes, domain.SafeDepositBox{
			ID:         uuid.New(),
			CategoryID: dir.categories["Applications"],
			Name:       "box-" + string(rune('a'+i%26)) + uuid.NewString()[:4],
			Path:       "app/box/",
			Owner:      "Lst-owners",
			CreatedAt:  time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	return boxes
}

// --- export ---

func TestExport_PaginationBoundary(t *testing.T) {
	dir := newFakeDirectory()
	sdbs := &fakeSDBStore{boxes: seedBoxes(dir, 25)}
	e := testEngine(sdbs, dir)
	ctx := context.Background()

	// offset+limit == totalCount: no next page.
	page, err := e.Export(ctx, 10, 20)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if page.TotalCount != 25 {
		t.Fatalf("expected total 25, got %d", page.TotalCount)
	}
	if page.HasNext {
		t.Fatal("offset 20 + limit 10 over 25 boxes must have no next page")
	}
	if page.NextOffset != 0 {
		t.Fatalf("next offset must be unset, got %d", page.NextOffset)
	}
	if page.CountInResult != 5 {
		t.Fatalf("expected 5 boxes in result, got %d", page.CountInResult)
	}

	page, err = e.Export(ctx, 10, 10)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !page.HasNext {
		t.Fatal("offset 10 + limit 10 over 25 boxes must have a next page")
	}
	if page.NextOffset != 20 {
		t.Fatalf("expected next offset 20, got %d", page.NextOffset)
	}
}

func TestExport_ResolvesNames(t *testing.T) {
	dir := newFakeDirectory()
	box := domain.SafeDepositBox{
		ID:          uuid.New(),
		CategoryID:  dir.categories["Applications"],
		Name:        "payments",
		Path:        "app/payments/",
		Owner:       "Lst-payments",
		Description: "payment service secrets",
		CreatedBy:   "alice",
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UserGroupPermissions: []domain.UserGroupPermission{
			{Name: "Lst-payments-devs", RoleID: dir.roles["write"]},
		},
		IamRolePermissions: []domain.IamRolePermission{
			{AccountID: "123456789012", IamRoleName: "payments-svc", RoleID: dir.roles["read"]},
		},
	}
	sdbs := &fakeSDBStore{boxes: []domain.SafeDepositBox{box}}
	e := testEngine(sdbs, dir)

	page, err := e.Export(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(page.Metadata) != 1 {
		t.Fatalf("expected 1 box, got %d", len(page.Metadata))
	}
	md := page.Metadata[0]
	if md.Category != "Applications" {
		t.Fatalf("expected category name, got %q", md.Category)
	}
	if got := md.UserGroupPermissions["Lst-payments-devs"]; got != "write" {
		t.Fatalf("expected group grant role name write, got %q", got)
	}
	arn := "arn:aws:iam::123456789012:role/payments-svc"
	if got := md.IamRolePermissions[arn]; got != "read" {
		t.Fatalf("expected IAM grant %s -> read, got %q", arn, got)
	}
}

// --- restore ---

func validMetadata() domain.SDBMetadata {
	return domain.SDBMetadata{
		Name:          "payments",
		Path:          "app/payments/",
		Category:      "Applications",
		Owner:         "Lst-payments",
		Description:   "payment service secrets",
		CreatedBy:     "alice",
		CreatedAt:     time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
		LastUpdatedBy: "bob",
		LastUpdatedAt: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		UserGroupPermissions: map[string]string{
			"Lst-payments-devs": "write",
		},
		IamRolePermissions: map[string]string{
			"arn:aws:iam::123456789012:role/payments-svc": "read",
		},
	}
}

func TestRestore_CreatesNewBox(t *testing.T) {
	dir := newFakeDirectory()
	sdbs := &fakeSDBStore{}
	e := testEngine(sdbs, dir)

	minted := uuid.New()
	e.newID = func() uuid.UUID { return minted }

	id, err := e.Restore(context.Background(), validMetadata(), "admin")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if id != minted {
		t.Fatalf("expected minted id %s, got %s", minted, id)
	}
	if len(sdbs.restored) != 1 {
		t.Fatalf("expected 1 restored box, got %d", len(sdbs.restored))
	}

	sdb := sdbs.restored[0]
	if sdb.CategoryID != dir.categories["Applications"] {
		t.Fatal("category name must resolve to the directory's id")
	}
	// Audit fields come verbatim from the metadata, not from the restoring actor.
	if sdb.CreatedBy != "alice" || sdb.LastUpdatedBy != "bob" {
		t.Fatalf("restore must preserve original provenance: %+v", sdb)
	}
	if !sdb.CreatedAt.Equal(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("restore must preserve original created timestamp, got %v", sdb.CreatedAt)
	}

	if len(sdb.UserGroupPermissions) != 1 || sdb.UserGroupPermissions[0].RoleID != dir.roles["write"] {
		t.Fatalf("group grant must resolve to role id: %+v", sdb.UserGroupPermissions)
	}
	if len(sdb.IamRolePermissions) != 1 {
		t.Fatalf("expected 1 IAM grant, got %d", len(sdb.IamRolePermissions))
	}
	iam := sdb.IamRolePermissions[0]
	if iam.AccountID != "123456789012" || iam.IamRoleName != "payments-svc" {
		t.Fatalf("ARN must parse into account and role name: %+v", iam)
	}
	if iam.RoleID != dir.roles["read"] {
		t.Fatal("IAM grant must resolve to role id")
	}
}

func TestRestore_ReusesExistingID(t *testing.T) {
	dir := newFakeDirectory()
	existing := uuid.New()
	sdbs := &fakeSDBStore{boxes: []domain.SafeDepositBox{{ID: existing, Name: "payments"}}}
	e := testEngine(sdbs, dir)

	id, err := e.Restore(context.Background(), validMetadata(), "admin")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if id != existing {
		t.Fatalf("restore by existing name must reuse id %s, got %s", existing, id)
	}
}

func TestRestore_InvalidCategoryName(t *testing.T) {
	dir := newFakeDirectory()
	sdbs := &fakeSDBStore{}
	e := testEngine(sdbs, dir)

	md := validMetadata()
	md.Category = "NoSuchCategory"

	_, err := e.Restore(context.Background(), md, "admin")
	var catErr InvalidCategoryNameError
	if !errors.As(err, &catErr) {
		t.Fatalf("expected InvalidCategoryNameError, got %v", err)
	}
	if catErr.Name != "NoSuchCategory" {
		t.Fatalf("error must name the offending category, got %q", catErr.Name)
	}
	if len(sdbs.restored) != 0 {
		t.Fatal("failed restore must write nothing")
	}
}

func TestRestore_InvalidRoleName(t *testing.T) {
	dir := newFakeDirectory()
	sdbs := &fakeSDBStore{}
	e := testEngine(sdbs, dir)

	md := validMetadata()
	md.UserGroupPermissions = map[string]string{"Lst-devs": "superuser"}

	_, err := e.Restore(context.Background(), md, "admin")
	var roleErr InvalidRoleNameError
	if !errors.As(err, &roleErr) {
		t.Fatalf("expected InvalidRoleNameError, got %v", err)
	}
	if roleErr.RoleName != "superuser" {
		t.Fatalf("error must name the offending role, got %q", roleErr.RoleName)
	}
	if len(sdbs.restored) != 0 {
		t.Fatal("failed restore must write nothing")
	}
}

func TestRestore_InvalidIamRoleArn(t *testing.T) {
	dir := newFakeDirectory()
	sdbs := &fakeSDBStore{}
	e := testEngine(sdbs, dir)

	md := validMetadata()
	md.IamRolePermissions = map[string]string{"not-an-arn": "read"}

	_, err := e.Restore(context.Background(), md, "admin")
	var arnErr InvalidIamRoleArnError
	if !errors.As(err, &arnErr) {
		t.Fatalf("expected InvalidIamRoleArnError, got %v", err)
	}
	if arnErr.ARN != "not-an-arn" {
		t.Fatalf("error must name the offending ARN, got %q", arnErr.ARN)
	}
	if len(sdbs.restored) != 0 {
		t.Fatal("failed restore must write nothing")
	}
}

func TestIamRoleArnPattern(t *testing.T) {
	cases := []struct {
		arn       string
		accountID string
		roleName  string
		ok        bool
	}{
		{"arn:aws:iam::123456789012:role/my-role", "123456789012", "my-role", true},
		{"arn:aws:iam::123456789012:role/path/to/role", "123456789012", "path/to/role", true},
		{"arn:aws:iam::123456789012:user/my-user", "", "", false},
		{"arn:aws:sts::123456789012:role/my-role", "", "", false},
		{"not-an-arn", "", "", false},
		{"arn:aws:iam::123456789012:role/", "", "", false},
	}
	for _, c := range cases {
		m := iamRoleArnPattern.FindStringSubmatch(c.arn)
		if c.ok {
			if m == nil {
				t.Fatalf("ARN %q must match", c.arn)
			}
			if m[1] != c.accountID || m[2] != c.roleName {
				t.Fatalf("ARN %q parsed as (%q, %q), want (%q, %q)", c.arn, m[1], m[2], c.accountID, c.roleName)
			}
		} else if m != nil {
			t.Fatalf("ARN %q must not match, got %v", c.arn, m)
		}
	}
}

// --- restore with secrets ---

type fakeSecretRestorer struct {
	sdbID     uuid.UUID
	data      map[string]map[string]any
	principal string
}

func (f *fakeSecretRestorer) RestoreSDBSecrets(_ context.Context, sdbID uuid.UUID, data map[string]map[string]any, principal string) error {
	f.sdbID = sdbID
	f.data = data
	f.principal = principal
	return nil
}

func TestRestoreWithSecrets(t *testing.T) {
	dir := newFakeDirectory()
	sdbs := &fakeSDBStore{}
	restorer := &fakeSecretRestorer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(sdbs, dir, restorer, logger)

	data := map[string]map[string]any{
		"app/payments/db": {"password": "hunter2"},
	}
	id, err := e.RestoreWithSecrets(context.Background(), validMetadata(), data, "admin")
	if err != nil {
		t.Fatalf("restore with secrets: %v", err)
	}
	if restorer.sdbID != id {
		t.Fatalf("secrets must restore under the restored box id %s, got %s", id, restorer.sdbID)
	}
	if restorer.principal != "admin" {
		t.Fatalf("expected principal admin, got %q", restorer.principal)
	}
}
