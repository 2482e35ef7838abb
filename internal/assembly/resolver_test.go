package assembly

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolverRegisterShortCircuitsLoad(t *testing.T) {
	loadCalls := 0
	r := NewResolver(func(path string) (*Assembly, error) {
		loadCalls++
		return NewAssembly("unused", path), nil
	})
	entry := NewAssembly("MyApp", "/root/MyApp.dll")
	r.Register(entry)

	got, ok := r.TryResolve("MyApp")
	if !ok || got != entry {
		t.Fatalf("TryResolve(MyApp) = (%v, %v), want (%v, true)", got, ok, entry)
	}
	if loadCalls != 0 {
		t.Errorf("Register should have pre-seeded the cache; load was called %d times", loadCalls)
	}
}

func TestResolverSearchesDirectoriesInOrder(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := os.WriteFile(filepath.Join(dirB, "Dep.dll"), []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	var loadedPath string
	r := NewResolver(func(path string) (*Assembly, error) {
		loadedPath = path
		return NewAssembly("Dep", path), nil
	})
	r.AddSearchDirectory(dirA)
	r.AddSearchDirectory(dirB)

	a, ok := r.TryResolve("Dep")
	if !ok {
		t.Fatal("expected TryResolve to find Dep.dll in the second search directory")
	}
	want := filepath.Join(dirB, "Dep.dll")
	if loadedPath != want {
		t.Errorf("loaded path = %q, want %q", loadedPath, want)
	}
	if a.Name != "Dep" {
		t.Errorf("resolved assembly name = %q, want Dep", a.Name)
	}

	// Second call must hit the cache, not the search path again.
	loadedPath = ""
	if _, ok := r.TryResolve("Dep"); !ok {
		t.Fatal("expected cached resolution to still succeed")
	}
	if loadedPath != "" {
		t.Error("expected the second TryResolve to be served from cache, not reloaded")
	}
}

func TestResolverMissingAssembly(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(func(path string) (*Assembly, error) {
		t.Fatalf("load should never be called for a missing assembly, got %s", path)
		return nil, nil
	})
	r.AddSearchDirectory(dir)

	if _, ok := r.TryResolve("Missing"); ok {
		t.Error("TryResolve should report failure for a missing assembly")
	}

	_, err := r.Resolve("Missing")
	if err == nil {
		t.Fatal("expected Resolve to return a ResolutionError")
	}
	resErr, ok := err.(*ResolutionError)
	if !ok {
		t.Fatalf("error type = %T, want *ResolutionError", err)
	}
	if resErr.Name != "Missing" {
		t.Errorf("ResolutionError.Name = %q, want Missing", resErr.Name)
	}
	if len(resErr.SearchDirs) != 1 || resErr.SearchDirs[0] != dir {
		t.Errorf("ResolutionError.SearchDirs = %v, want [%s]", resErr.SearchDirs, dir)
	}
}

func TestResolverDisposeClearsCache(t *testing.T) {
	loadCalls := 0
	r := NewResolver(func(path string) (*Assembly, error) {
		loadCalls++
		return NewAssembly("X", path), nil
	})
	entry := NewAssembly("X", "/root/X.dll")
	r.Register(entry)
	r.Dispose()

	if _, ok := r.TryResolve("X"); ok {
		t.Error("expected TryResolve to miss after Dispose cleared the cache")
	}
}
