package ml

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestVocabulary(t *testing.T) {
	v := NewVocabulary()
	if v.Size() != 2 {
		t.Fatalf("fresh vocabulary has %d symbols", v.Size())
	}
	if id, _ := v.SymbolToID(StartSymbol); id != StartID {
		t.Errorf("start id %d", id)
	}
	if id, _ := v.SymbolToID(EndSymbol); id != EndID {
		t.Errorf("end id %d", id)
	}

	v.AddSentence("X O  X B-NP")
	if v.Size() != 5 {
		t.Fatalf("size %d after adding 3 new symbols", v.Size())
	}
	if id := v.Add("O"); id != 3 {
		t.Errorf("re-adding O gave id %d", id)
	}
	if v.Size() != 5 {
		t.Errorf("re-adding changed the size to %d", v.Size())
	}

	for id, sym := range v.Symbols() {
		got, err := v.SymbolToID(sym)
		if err != nil || got != id {
			t.Errorf("SymbolToID(%q) = %d, %v", sym, got, err)
		}
		back, err := v.IDToSymbol(id)
		if err != nil || back != sym {
			t.Errorf("IDToSymbol(%d) = %q, %v", id, back, err)
		}
	}

	if _, err := v.SymbolToID("missing"); !errors.Is(err, ErrLookup) {
		t.Errorf("unknown symbol: got %v", err)
	}
	if _, err := v.IDToSymbol(v.Size()); !errors.Is(err, ErrLookup) {
		t.Errorf("unknown id: got %v", err)
	}
	if _, err := v.IDToSymbol(-1); !errors.Is(err, ErrLookup) {
		t.Errorf("negative id: got %v", err)
	}

	ids, err := v.Encode([]string{"X", "O", "X"})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{2, 3, 2, EndID}
	if len(ids) != len(want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Encode = %v, want %v", ids, want)
		}
	}
	if _, err := v.Encode([]string{"X", "nope"}); !errors.Is(err, ErrLookup) {
		t.Errorf("Encode unknown: got %v", err)
	}
}

func TestVocabularySaveLoad(t *testing.T) {
	v := NewVocabulary()
	v.AddSentence("B-NP I-NP O")
	path := filepath.Join(t.TempDir(), "vocab.gob")
	if err := v.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadVocabulary(path)
	if err != nil {
		t.Fatal(err)
	}
	got, want := loaded.Symbols(), v.Symbols()
	if len(got) != len(want) {
		t.Fatalf("loaded %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("loaded %v, want %v", got, want)
		}
	}
}
