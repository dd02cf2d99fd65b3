package artifact

import (
	"context"
	"errors"
	"testing"
)

type fakeFolder struct {
	existing map[string]string // name -> id
	findErr  error
	created  []string
	replaced []string
}

func (f *fakeFolder) FindByName(_ context.Context, _, name string) (Ref, bool, error) {
	if f.findErr != nil {
		return Ref{}, false, f.findErr
	}
	id, ok := f.existing[name]
	return Ref{ID: id}, ok, nil
}

func (f *fakeFolder) Create(_ context.Context, _, name string, _ []byte, _ string) (Ref, error) {
	f.created = append(f.created, name)
	return Ref{ID: "new-" + name}, nil
}

func (f *fakeFolder) Replace(_ context.Context, id string, _ []byte, _ string) (Ref, error) {
	f.replaced = append(f.replaced, id)
	return Ref{ID: id}, nil
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	f := &fakeFolder{existing: map[string]string{"a.csv": "id-a"}}
	ref, err := Upsert(context.Background(), f, "loc", "a.csv", nil, MimeCSV)
	if err != nil {
		t.Fatal(err)
	}
	if ref.ID != "id-a" || len(f.replaced) != 1 || len(f.created) != 0 {
		t.Errorf("ref=%+v replaced=%v created=%v", ref, f.replaced, f.created)
	}
}

func TestUpsert_CreatesMissing(t *testing.T) {
	f := &fakeFolder{existing: map[string]string{}}
	ref, err := Upsert(context.Background(), f, "loc", "b.zip", nil, MimeZip)
	if err != nil {
		t.Fatal(err)
	}
	if ref.ID != "new-b.zip" || len(f.created) != 1 {
		t.Errorf("ref=%+v created=%v", ref, f.created)
	}
}

func TestUpsert_FindErrorStops(t *testing.T) {
	boom := errors.New("quota")
	f := &fakeFolder{findErr: boom}
	if _, err := Upsert(context.Background(), f, "loc", "c.csv", nil, MimeCSV); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped quota error", err)
	}
	if len(f.created)+len(f.replaced) != 0 {
		t.Error("write attempted after lookup failure")
	}
}
